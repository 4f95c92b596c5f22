package models

import "time"

// Category is a top-level grouping of folders scoped to a creator.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID string    `db:"creator_id" json:"creatorId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Folder is a named grouping within a category. Media membership lives on the
// media rows, not here.
type Folder struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CategoryID string    `db:"category_id" json:"categoryId"`
	CreatorID  string    `db:"creator_id" json:"creatorId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type folderRefKind int

const (
	folderRefReal folderRefKind = iota
	folderRefAll
	folderRefUnsorted
)

// FolderRef is a closed reference to a folder view: a real folder id, the
// "all" view (no folder filter) or the "unsorted" view (no real membership).
// The reserved views are never persisted.
type FolderRef struct {
	kind folderRefKind
	id   string
}

// FolderAll returns the unfiltered view reference.
func FolderAll() FolderRef { return FolderRef{kind: folderRefAll} }

// FolderUnsorted returns the no-real-membership view reference.
func FolderUnsorted() FolderRef { return FolderRef{kind: folderRefUnsorted} }

// FolderID references a real, persisted folder.
func FolderID(id string) FolderRef { return FolderRef{kind: folderRefReal, id: id} }

// ParseFolderRef maps the wire representation onto the closed variant.
func ParseFolderRef(raw string) FolderRef {
	switch raw {
	case "", "all":
		return FolderAll()
	case "unsorted":
		return FolderUnsorted()
	default:
		return FolderID(raw)
	}
}

func (f FolderRef) IsAll() bool      { return f.kind == folderRefAll }
func (f FolderRef) IsUnsorted() bool { return f.kind == folderRefUnsorted }
func (f FolderRef) IsReal() bool     { return f.kind == folderRefReal }

// ID returns the real folder id, or "" for the reserved views.
func (f FolderRef) ID() string {
	if f.kind == folderRefReal {
		return f.id
	}
	return ""
}

func (f FolderRef) String() string {
	switch f.kind {
	case folderRefAll:
		return "all"
	case folderRefUnsorted:
		return "unsorted"
	default:
		return f.id
	}
}

// IsReservedFolderID reports whether a stored membership value is one of the
// legacy reserved markers rather than a real folder id.
func IsReservedFolderID(id string) bool {
	return id == "all" || id == "unsorted"
}

// RealFolders returns the membership set with reserved markers removed.
func RealFolders(folders []string) []string {
	out := make([]string, 0, len(folders))
	for _, id := range folders {
		if !IsReservedFolderID(id) {
			out = append(out, id)
		}
	}
	return out
}
