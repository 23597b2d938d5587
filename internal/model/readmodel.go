package model

import "time"

// AdStatus is the lifecycle state of a classified ad as seen by read models.
type AdStatus string

const (
	AdStatusDraft     AdStatus = "draft"
	AdStatusPublished AdStatus = "published"
	AdStatusSold      AdStatus = "sold"
)

// OwnerAd is one row of the owner index: every ad an owner has registered.
type OwnerAd struct {
	AdID      string    `json:"ad_id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Status    AdStatus  `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailableAd is a classified ad document for the public listing. Only
// documents with Available set are shown to buyers.
type AvailableAd struct {
	AdID        string     `json:"ad_id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Text        string     `json:"text"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	Available   bool       `json:"available"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
