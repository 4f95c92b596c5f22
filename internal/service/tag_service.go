package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

type tagStore interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id string) (*models.Tag, error)
	FindByNameFold(ctx context.Context, scope, name string) (*models.Tag, error)
	List(ctx context.Context, scopes ...string) ([]models.Tag, error)
	Delete(ctx context.Context, id string) error
}

type tagMediaStore interface {
	GetByID(ctx context.Context, id string) (*models.MediaRecord, error)
	AddTag(ctx context.Context, id, tagID string) error
	RemoveTag(ctx context.Context, id, tagID string) error
	StripTag(ctx context.Context, tagID string) (int64, error)
}

// TagService manages the shared tag registry and tag membership on media.
type TagService struct {
	tags     tagStore
	media    tagMediaStore
	listings listingInvalidator
	logger   *zap.Logger
}

// NewTagService constructs the service.
func NewTagService(tags tagStore, media tagMediaStore, listings listingInvalidator, logger *zap.Logger) *TagService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagService{tags: tags, media: media, listings: listings, logger: logger}
}

// Create registers a tag in the creator's scope, or the shared scope when no
// creator is given. Names are unique ignoring case within a scope; creating
// an existing name returns the existing tag unchanged.
func (s *TagService) Create(ctx context.Context, req dto.CreateTagRequest, actor *models.JWTClaims) (*models.Tag, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tag name is required")
	}
	scope := strings.TrimSpace(req.Creator)
	if scope == "" {
		scope = models.TagScopeShared
	} else if !actor.CanAccessCreator(scope) {
		return nil, appErrors.ErrForbidden
	}

	existing, err := s.tags.FindByNameFold(ctx, scope, name)
	if err == nil {
		return decorate(existing), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up tag")
	}

	tag := &models.Tag{Name: name, Scope: scope}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tag")
	}
	return decorate(tag), nil
}

// List returns the creator's tags plus the shared scope, with derived colors,
// name order.
func (s *TagService) List(ctx context.Context, creatorID string, actor *models.JWTClaims) ([]models.Tag, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	scopes := []string{models.TagScopeShared}
	if creatorID != "" {
		if !actor.CanAccessCreator(creatorID) {
			return nil, appErrors.ErrForbidden
		}
		scopes = append(scopes, creatorID)
	}
	tags, err := s.tags.List(ctx, scopes...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tags")
	}
	for i := range tags {
		tags[i].Color = models.TagColor(tags[i].Name)
	}
	return tags, nil
}

// Apply adds one tag across a selection of records. Already-tagged records
// succeed without change.
func (s *TagService) Apply(ctx context.Context, req dto.ApplyTagRequest, actor *models.JWTClaims) (*models.BatchResult, error) {
	return s.applyOrRemove(ctx, req, actor, false)
}

// Unapply removes one tag across a selection of records.
func (s *TagService) Unapply(ctx context.Context, req dto.ApplyTagRequest, actor *models.JWTClaims) (*models.BatchResult, error) {
	return s.applyOrRemove(ctx, req, actor, true)
}

// Delete removes a tag and strips it from every record that references it.
func (s *TagService) Delete(ctx context.Context, tagID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	stripped, err := s.media.StripTag(ctx, tagID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to strip tag from media")
	}
	if stripped > 0 {
		s.logger.Info("stripped tag from media", zap.String("tag_id", tagID), zap.Int64("records", stripped))
	}
	if err := s.tags.Delete(ctx, tagID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete tag")
	}
	return nil
}

func (s *TagService) applyOrRemove(ctx context.Context, req dto.ApplyTagRequest, actor *models.JWTClaims, remove bool) (*models.BatchResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if len(req.FileIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selection is empty")
	}
	if _, err := s.tags.GetByID(ctx, req.TagID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tag not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tag")
	}

	result := models.NewBatchResult()
	touched := make(map[string]struct{})
	for _, id := range req.FileIDs {
		record, err := s.media.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.AddFailure(id, appErrors.ErrNotFound)
			} else {
				result.AddFailure(id, err)
			}
			continue
		}
		if !actor.CanAccessCreator(record.CreatorID) {
			result.AddFailure(id, appErrors.ErrForbidden)
			continue
		}
		if remove {
			err = s.media.RemoveTag(ctx, id, req.TagID)
		} else {
			err = s.media.AddTag(ctx, id, req.TagID)
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			result.AddFailure(id, err)
			continue
		}
		result.AddSuccess(id)
		touched[record.CreatorID] = struct{}{}
	}
	if s.listings != nil {
		for creatorID := range touched {
			s.listings.InvalidateListings(ctx, creatorID)
		}
	}
	return result, nil
}

func decorate(tag *models.Tag) *models.Tag {
	tag.Color = models.TagColor(tag.Name)
	return tag
}
