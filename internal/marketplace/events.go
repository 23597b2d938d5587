// Package marketplace holds the classified-ad events and the read-model
// projections built from them.
package marketplace

import (
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/typemap"
)

// StreamPrefix names the per-ad streams: ClassifiedAd-{id}.
const StreamPrefix = "ClassifiedAd"

// StreamName returns the stream that holds an ad's events.
func StreamName(adID string) string {
	return StreamPrefix + "-" + adID
}

// Version 1 classified-ad events. Field names on the wire are PascalCase.

type ClassifiedAdRegistered struct {
	ID      string `json:"Id"`
	OwnerID string `json:"OwnerId"`
}

type ClassifiedAdTitleChanged struct {
	ID    string `json:"Id"`
	Title string `json:"Title"`
}

type ClassifiedAdTextUpdated struct {
	ID   string `json:"Id"`
	Text string `json:"AdText"`
}

type ClassifiedAdPriceChanged struct {
	ID           string  `json:"Id"`
	Price        float64 `json:"Price"`
	CurrencyCode string  `json:"CurrencyCode"`
}

type ClassifiedAdPublished struct {
	ID          string    `json:"Id"`
	OwnerID     string    `json:"OwnerId"`
	ApprovedBy  string    `json:"ApprovedBy"`
	PublishedAt time.Time `json:"PublishedAt"`
}

type ClassifiedAdMarkedAsSold struct {
	ID     string    `json:"Id"`
	SoldAt time.Time `json:"SoldAt"`
}

// NewTypeMapper returns a mapper with every V1 event registered under its
// wire name.
func NewTypeMapper() (*typemap.Mapper, error) {
	m := typemap.New()
	err := errors.Join(
		typemap.Map[ClassifiedAdRegistered](m, "Marketplace.V1.ClassifiedAdRegistered"),
		typemap.Map[ClassifiedAdTitleChanged](m, "Marketplace.V1.ClassifiedAdTitleChanged"),
		typemap.Map[ClassifiedAdTextUpdated](m, "Marketplace.V1.ClassifiedAdTextUpdated"),
		typemap.Map[ClassifiedAdPriceChanged](m, "Marketplace.V1.ClassifiedAdPriceChanged"),
		typemap.Map[ClassifiedAdPublished](m, "Marketplace.V1.ClassifiedAdPublished"),
		typemap.Map[ClassifiedAdMarkedAsSold](m, "Marketplace.V1.ClassifiedAdMarkedAsSold"),
	)
	if err != nil {
		return nil, fmt.Errorf("register marketplace events: %w", err)
	}
	return m, nil
}
