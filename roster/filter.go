// Package roster maintains the live, filtered visitor list shown on the
// dashboard.
package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"visitor-kiosk/models"
	"visitor-kiosk/store"

	"golang.org/x/sync/errgroup"
)

type Preset string

const (
	PresetToday           Preset = "TODAY"
	PresetStaying         Preset = "STAYING"
	PresetCheckedOutToday Preset = "CHECKED_OUT_TODAY"
	PresetAll             Preset = "ALL"
	PresetCustom          Preset = "CUSTOM"
)

const DefaultPageSize = 50

var ErrUnknownPreset = errors.New("unknown roster filter")

// ParsePreset accepts the preset names case-insensitively plus the
// dashboard's older lowercase aliases. Empty means TODAY.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TODAY":
		return PresetToday, nil
	case "STAYING", "ON_SITE":
		return PresetStaying, nil
	case "CHECKED_OUT_TODAY", "CHECKOUT_TODAY", "OUT_TODAY":
		return PresetCheckedOutToday, nil
	case "ALL":
		return PresetAll, nil
	case "CUSTOM", "RANGE":
		return PresetCustom, nil
	}
	return "", ErrUnknownPreset
}

// Filter is a dashboard query. From and To are calendar dates and only
// apply to CUSTOM; Name applies to every preset.
type Filter struct {
	Preset Preset     `json:"preset"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Name   string     `json:"name,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := startOfDay(t, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StoreFilter resolves the preset against now in loc.
func (f Filter) StoreFilter(now time.Time, loc *time.Location) store.Filter {
	if loc == nil {
		loc = time.UTC
	}
	sf := store.Filter{NameContains: strings.TrimSpace(f.Name)}
	start, end := dayBounds(now, loc)

	switch f.Preset {
	case PresetToday, "":
		sf.CheckinFrom, sf.CheckinTo = &start, &end
	case PresetStaying:
		onSite := true
		sf.OnSite = &onSite
	case PresetCheckedOutToday:
		sf.CheckoutFrom, sf.CheckoutTo = &start, &end
	case PresetCustom:
		if f.From != nil {
			from := startOfDay(*f.From, loc)
			sf.CheckinFrom = &from
		}
		if f.To != nil {
			_, to := dayBounds(*f.To, loc)
			sf.CheckinTo = &to
		}
	}
	return sf
}

// Querier is the read side of the record store.
type Querier interface {
	Query(ctx context.Context, f store.Filter, limit int) ([]models.Visitor, error)
	Count(ctx context.Context, f store.Filter) (int64, error)
}

// Summary counters are independent of the active filter, except Range
// which counts the CUSTOM date range when one is active.
type Summary struct {
	Today           int64  `json:"today"`
	Staying         int64  `json:"staying"`
	CheckedOutToday int64  `json:"checkedOutToday"`
	All             int64  `json:"all"`
	Range           *int64 `json:"range,omitempty"`
}

// Summarize runs one count query per counter, concurrently.
func Summarize(ctx context.Context, q Querier, active Filter, now time.Time, loc *time.Location) (Summary, error) {
	var sum Summary
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, f Filter) {
		sf := f.StoreFilter(now, loc)
		g.Go(func() error {
			n, err := q.Count(gctx, sf)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&sum.Today, Filter{Preset: PresetToday})
	count(&sum.Staying, Filter{Preset: PresetStaying})
	count(&sum.CheckedOutToday, Filter{Preset: PresetCheckedOutToday})
	count(&sum.All, Filter{Preset: PresetAll})

	var rng int64
	if active.Preset == PresetCustom {
		count(&rng, Filter{Preset: PresetCustom, From: active.From, To: active.To})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if active.Preset == PresetCustom {
		sum.Range = &rng
	}
	return sum, nil
}

// Load runs the roster query for f. A zero limit uses pageSize; a negative
// one is unbounded.
func Load(ctx context.Context, q Querier, f Filter, now time.Time, loc *time.Location, pageSize int) ([]models.Visitor, error) {
	limit := f.Limit
	if limit == 0 {
		limit = pageSize
	}
	if limit < 0 {
		limit = 0
	}
	rows, err := q.Query(ctx, f.StoreFilter(now, loc), limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Visitor{}
	}
	return rows, nil
}
