// Package models defines data structures for the review crawler.
package models

import (
	"fmt"
	"time"
)

// HelpfulnessRating is the "H of T people found the following review helpful"
// pair. Reviews without the note carry the zero value.
type HelpfulnessRating struct {
	Helpful int `csv:"helpful_count" json:"helpful"`
	Total   int `csv:"total_count" json:"total"`
}

// Valid reports whether both counts are non-negative and Helpful <= Total.
func (h HelpfulnessRating) Valid() bool {
	return h.Helpful >= 0 && h.Total >= 0 && h.Helpful <= h.Total
}

func (h HelpfulnessRating) String() string {
	return fmt.Sprintf("%d of %d", h.Helpful, h.Total)
}

// StarRating is the truncated integer part of an "X.Y out of 5 stars" label.
type StarRating int

const (
	MinStarRating StarRating = 0
	MaxStarRating StarRating = 5
)

// Valid reports whether the rating falls inside [0, 5].
func (s StarRating) Valid() bool {
	return s >= MinStarRating && s <= MaxStarRating
}

func (s StarRating) String() string {
	return fmt.Sprintf("%d stars", int(s))
}

// Review is a single extracted listing item.
type Review struct {
	Helpfulness HelpfulnessRating `json:"helpfulness"`
	Stars       StarRating        `csv:"star_rating" json:"stars"`
}

func (r Review) String() string {
	return r.Helpfulness.String() + ", " + r.Stars.String()
}

// CrawlResult holds the overall result of a crawl. Reviews are ordered by
// page and then by position within the page.
type CrawlResult struct {
	Reviews   []Review
	StartTime time.Time
	EndTime   time.Time
	Pages     int
	Retries   int
}
