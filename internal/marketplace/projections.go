package marketplace

import (
	"context"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// Projection names, also used as checkpoint keys.
const (
	OwnerIndexName   = "owner-index"
	AvailableAdsName = "available-ads"
)

// OwnerIndex keeps, per owner, every ad they registered with its current
// title, price and status. Every update sets fields to values carried by the
// event, so re-applying an event is harmless.
type OwnerIndex struct {
	store store.ReadModelStore
}

func NewOwnerIndex(s store.ReadModelStore) *OwnerIndex {
	return &OwnerIndex{store: s}
}

func (p *OwnerIndex) Name() string { return OwnerIndexName }

func (p *OwnerIndex) Handle(ctx context.Context, event any) error {
	switch e := event.(type) {
	case ClassifiedAdRegistered:
		return p.store.UpdateOwnerAd(ctx, e.ID, func(ad *model.OwnerAd) {
			ad.OwnerID = e.OwnerID
		})
	case ClassifiedAdTitleChanged:
		return p.store.UpdateOwnerAd(ctx, e.ID, func(ad *model.OwnerAd) {
			ad.Title = e.Title
		})
	case ClassifiedAdPriceChanged:
		return p.store.UpdateOwnerAd(ctx, e.ID, func(ad *model.OwnerAd) {
			ad.Price = e.Price
			ad.Currency = e.CurrencyCode
		})
	case ClassifiedAdPublished:
		return p.store.UpdateOwnerAd(ctx, e.ID, func(ad *model.OwnerAd) {
			ad.OwnerID = e.OwnerID
			ad.Status = model.AdStatusPublished
		})
	case ClassifiedAdMarkedAsSold:
		return p.store.UpdateOwnerAd(ctx, e.ID, func(ad *model.OwnerAd) {
			ad.Status = model.AdStatusSold
		})
	}
	return nil
}

// AvailableAds keeps the public listing: full ad documents, flagged
// available between publication and sale.
type AvailableAds struct {
	store store.ReadModelStore
}

func NewAvailableAds(s store.ReadModelStore) *AvailableAds {
	return &AvailableAds{store: s}
}

func (p *AvailableAds) Name() string { return AvailableAdsName }

func (p *AvailableAds) Handle(ctx context.Context, event any) error {
	switch e := event.(type) {
	case ClassifiedAdRegistered:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			ad.OwnerID = e.OwnerID
		})
	case ClassifiedAdTitleChanged:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			ad.Title = e.Title
		})
	case ClassifiedAdTextUpdated:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			ad.Text = e.Text
		})
	case ClassifiedAdPriceChanged:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			ad.Price = e.Price
			ad.Currency = e.CurrencyCode
		})
	case ClassifiedAdPublished:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			publishedAt := e.PublishedAt
			ad.OwnerID = e.OwnerID
			ad.Available = true
			ad.PublishedAt = &publishedAt
		})
	case ClassifiedAdMarkedAsSold:
		return p.store.UpdateAvailableAd(ctx, e.ID, func(ad *model.AvailableAd) {
			ad.Available = false
		})
	}
	return nil
}
