package dto

// CreateTagRequest creates (or returns) a tag. An empty creator targets the
// shared scope.
type CreateTagRequest struct {
	Name    string `json:"name" binding:"required"`
	Creator string `json:"creator"`
}

// ApplyTagRequest applies or removes one tag on many records.
type ApplyTagRequest struct {
	TagID   string   `json:"tagId" binding:"required"`
	FileIDs []string `json:"fileIds" binding:"required"`
}
