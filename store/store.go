// Package store is the Record Store adapter for the visitors table.
package store

import (
	"context"
	"errors"
	"time"

	"visitor-kiosk/models"
)

var ErrNotFound = errors.New("visitor not found")

// Patch is a partial update keyed by column name.
type Patch map[string]interface{}

// Filter narrows a roster query. Nil / empty fields do not filter.
type Filter struct {
	CheckinFrom  *time.Time
	CheckinTo    *time.Time
	CheckoutFrom *time.Time
	CheckoutTo   *time.Time
	NameContains string
	OnSite       *bool
}

// VisitorStore is the contract the lifecycle manager and the roster
// projection consume. Query results are always ordered newest id first.
type VisitorStore interface {
	Insert(ctx context.Context, v *models.Visitor) error
	Update(ctx context.Context, id int64, patch Patch) error
	Delete(ctx context.Context, ids []int64) (int64, error)
	Get(ctx context.Context, id int64) (*models.Visitor, error)
	Query(ctx context.Context, f Filter, limit int) ([]models.Visitor, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// CheckoutIfOpen sets checkout_time only while it is still null and
	// reports whether this call did it.
	CheckoutIfOpen(ctx context.Context, id int64, at time.Time) (bool, error)
	// ListLegacyPurposes returns rows whose purpose is not a known tag.
	ListLegacyPurposes(ctx context.Context, known []string, afterID int64, limit int) ([]models.Visitor, error)
}
