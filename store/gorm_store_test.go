package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-kiosk/models"
	"visitor-kiosk/realtime"
	"visitor-kiosk/store"
	"visitor-kiosk/store/storetest"
)

type recordingPublisher struct {
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.ChangeEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newStore(t *testing.T) (*store.GormVisitorStore, *recordingPublisher) {
	pub := &recordingPublisher{}
	return store.NewGormVisitorStore(storetest.Open(t), pub, nil), pub
}

func insert(t *testing.T, s *store.GormVisitorStore, name string, at time.Time) *models.Visitor {
	v := &models.Visitor{FullName: name, IDNumber: "1234567", ContactPerson: "x", Purpose: "meeting", CheckinTime: at}
	require.NoError(t, s.Insert(context.Background(), v))
	return v
}

func TestInsertAssignsIncreasingIDsAndPublishes(t *testing.T) {
	s, pub := newStore(t)
	now := time.Now()
	a := insert(t, s, "A", now)
	b := insert(t, s, "B", now)

	assert.Greater(t, a.ID, int64(0))
	assert.Greater(t, b.ID, a.ID)
	require.Len(t, pub.events, 2)
	assert.Equal(t, realtime.EventInsert, pub.events[1].Type)
	assert.Equal(t, []int64{b.ID}, pub.events[1].IDs)
}

func TestQueryOrdersNewestFirst(t *testing.T) {
	s, _ := newStore(t)
	now := time.Now()
	for _, n := range []string{"A", "B", "C"} {
		insert(t, s, n, now)
	}

	rows, err := s.Query(context.Background(), store.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.Greater(t, rows[i-1].ID, rows[i].ID)
	}

	limited, err := s.Query(context.Background(), store.Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, "C", limited[0].FullName)
}

func TestFilters(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	old := insert(t, s, "Old Somchai", day.Add(-48*time.Hour))
	insert(t, s, "Today Somsri", day.Add(9*time.Hour))
	left := insert(t, s, "Today 100%", day.Add(10*time.Hour))

	ok, err := s.CheckoutIfOpen(ctx, left.ID, day.Add(11*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	from, to := day, day.Add(24*time.Hour-time.Nanosecond)
	today, err := s.Count(ctx, store.Filter{CheckinFrom: &from, CheckinTo: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(2), today)

	onSite := true
	staying, err := s.Count(ctx, store.Filter{OnSite: &onSite})
	require.NoError(t, err)
	assert.Equal(t, int64(2), staying)

	outToday, err := s.Count(ctx, store.Filter{CheckoutFrom: &from, CheckoutTo: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(1), outToday)

	rows, err := s.Query(ctx, store.Filter{NameContains: "somchai"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)

	rows, err = s.Query(ctx, store.Filter{NameContains: "100%"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, left.ID, rows[0].ID)
}

func TestCheckoutIfOpenOnlyOnce(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	v := insert(t, s, "A", time.Now())

	first := time.Now().Add(time.Minute)
	ok, err := s.CheckoutIfOpen(ctx, v.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CheckoutIfOpen(ctx, v.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CheckoutTime)
	assert.WithinDuration(t, first, *got.CheckoutTime, time.Millisecond)
}

func TestUpdateDeleteAndGet(t *testing.T) {
	s, pub := newStore(t)
	ctx := context.Background()
	a := insert(t, s, "A", time.Now())
	b := insert(t, s, "B", time.Now())

	require.NoError(t, s.Update(ctx, a.ID, store.Patch{"company": "TDK"}))
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "TDK", got.Company)

	n, err := s.Delete(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, realtime.EventDelete, pub.events[len(pub.events)-1].Type)

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListLegacyPurposes(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	insert(t, s, "A", time.Now())
	legacy := &models.Visitor{FullName: "B", Purpose: "ประชุมงาน", CheckinTime: time.Now()}
	require.NoError(t, s.Insert(ctx, legacy))

	rows, err := s.ListLegacyPurposes(ctx, []string{"meeting", "other"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, legacy.ID, rows[0].ID)
}
