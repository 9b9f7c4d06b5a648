package models

import (
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// MakeSlug turns a display name into a URL slug, falling back to "item" for names with no usable characters.
func MakeSlug(name string) string {
	s := slug.Make(name)
	if s == "" {
		return "item"
	}
	if len(s) > 120 {
		s = strings.TrimRight(s[:120], "-")
	}
	return s
}

// newID is the BeforeCreate body shared by every model with a uuid primary key.
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
