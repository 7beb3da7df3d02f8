// Package project defines saved humanization projects: a titled snapshot of
// an input excerpt and its humanized result, shown on the user dashboard.
package project

import (
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/types"
)

// Project is one saved humanization result.
type Project struct {
	types.Entity
	ID       id.ProjectID `json:"id"`
	UserID   string       `json:"user_id"`
	Title    string       `json:"title"`
	Excerpt  string       `json:"excerpt"`
	Result   string       `json:"result"`
	Favorite bool         `json:"favorite"`
}

// ListOpts filters project listings.
type ListOpts struct {
	// Search matches case-insensitively against title and excerpt.
	Search string
	// FavoritesOnly restricts the listing to favorited projects.
	FavoritesOnly bool
	Limit         int
	Offset        int
}
