package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
	"github.com/velora-agency/creator-vault-api/pkg/response"
)

type tagService interface {
	Create(ctx context.Context, req dto.CreateTagRequest, actor *models.JWTClaims) (*models.Tag, error)
	List(ctx context.Context, creatorID string, actor *models.JWTClaims) ([]models.Tag, error)
	Apply(ctx context.Context, req dto.ApplyTagRequest, actor *models.JWTClaims) (*models.BatchResult, error)
	Unapply(ctx context.Context, req dto.ApplyTagRequest, actor *models.JWTClaims) (*models.BatchResult, error)
	Delete(ctx context.Context, tagID string, actor *models.JWTClaims) error
}

// TagHandler serves the shared tag registry endpoints.
type TagHandler struct {
	service tagService
}

// NewTagHandler constructs the handler.
func NewTagHandler(service tagService) *TagHandler {
	return &TagHandler{service: service}
}

// Create godoc
// @Summary Create a tag
// @Tags Tags
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /tags [post]
func (h *TagHandler) Create(c *gin.Context) {
	var req dto.CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tag name is required"))
		return
	}
	tag, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tag)
}

// List godoc
// @Summary List tags visible to a creator
// @Tags Tags
// @Produce json
// @Param creator query string false "Creator scope, defaults to the caller's"
// @Success 200 {object} response.Envelope
// @Router /tags [get]
func (h *TagHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	creatorID := c.Query("creator")
	if creatorID == "" && claims != nil {
		creatorID = claims.CreatorID
	}
	tags, err := h.service.List(c.Request.Context(), creatorID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags)
}

// Apply godoc
// @Summary Apply a tag to a selection
// @Tags Tags
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tags/apply [post]
func (h *TagHandler) Apply(c *gin.Context) {
	var req dto.ApplyTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tagId and fileIds are required"))
		return
	}
	result, err := h.service.Apply(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Unapply godoc
// @Summary Remove a tag from a selection
// @Tags Tags
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tags/remove [post]
func (h *TagHandler) Unapply(c *gin.Context) {
	var req dto.ApplyTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tagId and fileIds are required"))
		return
	}
	result, err := h.service.Unapply(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Delete godoc
// @Summary Delete a tag everywhere
// @Tags Tags
// @Param id path string true "Tag id"
// @Success 204
// @Router /tags/{id} [delete]
func (h *TagHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
