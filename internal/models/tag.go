package models

import "time"

// TagScopeShared is the scope for tags visible to every creator.
const TagScopeShared = "system"

// Tag is a free-form label, case-insensitively unique within its scope.
// Color is derived from the name, never stored.
type Tag struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Scope     string    `db:"scope" json:"scope"`
	Color     string    `db:"-" json:"color"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

var tagPalette = []string{"red", "green", "blue", "purple", "pink", "amber", "gray"}

// TagColor deterministically assigns a palette color from the tag name.
func TagColor(name string) string {
	sum := 0
	for _, r := range name {
		sum += int(r)
	}
	return tagPalette[sum%len(tagPalette)]
}
