package model

import "time"

type WikiPageMeta struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	Title         string    `json:"title"`
	CanonicalSlug string    `json:"canonical_slug"`
	CreatedAt     time.Time `json:"created_at"`
}

// WikiPageChange is one page-level change derived from a wiki push
type WikiPageChange struct {
	Slug   string      `json:"slug"`
	Title  string      `json:"title"`
	Path   string      `json:"path"`
	Action EventAction `json:"action"`
	SHA    string      `json:"sha"`
}
