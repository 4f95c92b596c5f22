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

type folderService interface {
	CreateCategory(ctx context.Context, creatorID string, req dto.CreateCategoryRequest, actor *models.JWTClaims) (*models.Category, error)
	ListCategories(ctx context.Context, creatorID string, actor *models.JWTClaims) ([]models.Category, error)
	RenameCategory(ctx context.Context, id string, req dto.RenameRequest, actor *models.JWTClaims) error
	DeleteCategory(ctx context.Context, id string, actor *models.JWTClaims) error
	CreateFolder(ctx context.Context, creatorID string, req dto.CreateFolderRequest, actor *models.JWTClaims) (*models.Folder, *models.BatchResult, error)
	ListFolders(ctx context.Context, creatorID, categoryID string, actor *models.JWTClaims) ([]models.Folder, error)
	RenameFolder(ctx context.Context, id string, req dto.RenameRequest, actor *models.JWTClaims) error
	DeleteFolder(ctx context.Context, id string, actor *models.JWTClaims) error
}

// FolderHandler serves the category and folder hierarchy endpoints.
type FolderHandler struct {
	service folderService
}

// NewFolderHandler constructs the handler.
func NewFolderHandler(service folderService) *FolderHandler {
	return &FolderHandler{service: service}
}

// CreateCategory godoc
// @Summary Create a category
// @Tags Folders
// @Accept json
// @Produce json
// @Param creatorId path string true "Creator id"
// @Success 201 {object} response.Envelope
// @Router /creators/{creatorId}/categories [post]
func (h *FolderHandler) CreateCategory(c *gin.Context) {
	var req dto.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "category name is required"))
		return
	}
	category, err := h.service.CreateCategory(c.Request.Context(), c.Param("creatorId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// ListCategories godoc
// @Summary List categories
// @Tags Folders
// @Produce json
// @Param creatorId path string true "Creator id"
// @Success 200 {object} response.Envelope
// @Router /creators/{creatorId}/categories [get]
func (h *FolderHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context(), c.Param("creatorId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories)
}

// RenameCategory godoc
// @Summary Rename a category
// @Tags Folders
// @Accept json
// @Param id path string true "Category id"
// @Success 204
// @Router /categories/{id} [patch]
func (h *FolderHandler) RenameCategory(c *gin.Context) {
	var req dto.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "name is required"))
		return
	}
	if err := h.service.RenameCategory(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteCategory godoc
// @Summary Delete a category and its folders
// @Tags Folders
// @Param id path string true "Category id"
// @Success 204
// @Router /categories/{id} [delete]
func (h *FolderHandler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateFolder godoc
// @Summary Create a folder
// @Tags Folders
// @Accept json
// @Produce json
// @Param creatorId path string true "Creator id"
// @Success 201 {object} response.Envelope
// @Router /creators/{creatorId}/folders [post]
func (h *FolderHandler) CreateFolder(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "name and categoryId are required"))
		return
	}
	folder, filed, err := h.service.CreateFolder(c.Request.Context(), c.Param("creatorId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"folder": folder, "filed": filed})
}

// ListFolders godoc
// @Summary List folders
// @Tags Folders
// @Produce json
// @Param creatorId path string true "Creator id"
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /creators/{creatorId}/folders [get]
func (h *FolderHandler) ListFolders(c *gin.Context) {
	folders, err := h.service.ListFolders(c.Request.Context(), c.Param("creatorId"), c.Query("category"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folders)
}

// RenameFolder godoc
// @Summary Rename a folder
// @Tags Folders
// @Accept json
// @Param id path string true "Folder id"
// @Success 204
// @Router /folders/{id} [patch]
func (h *FolderHandler) RenameFolder(c *gin.Context) {
	var req dto.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "name is required"))
		return
	}
	if err := h.service.RenameFolder(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteFolder godoc
// @Summary Delete a folder, keeping its files
// @Tags Folders
// @Param id path string true "Folder id"
// @Success 204
// @Router /folders/{id} [delete]
func (h *FolderHandler) DeleteFolder(c *gin.Context) {
	if err := h.service.DeleteFolder(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
