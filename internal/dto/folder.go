package dto

// CreateCategoryRequest creates a top-level grouping.
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateFolderRequest creates a folder inside an existing category.
type CreateFolderRequest struct {
	Name       string   `json:"name" binding:"required"`
	CategoryID string   `json:"categoryId" binding:"required"`
	FileIDs    []string `json:"fileIds"`
}

// RenameRequest renames a folder or category.
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}
