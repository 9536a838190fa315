package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"visitor-kiosk/models"
	"visitor-kiosk/store"
)

type staticForm FormConfig

func (f staticForm) Snapshot(context.Context) (FormConfig, error) {
	return FormConfig(f).clone(), nil
}

func allEnabled() staticForm {
	cfg := DefaultFormConfig()
	for _, k := range FieldKeys {
		cfg.Fields[k] = true
	}
	return staticForm(cfg)
}

// memStore is an in-memory VisitorStore with failure hooks.
type memStore struct {
	mu     sync.Mutex
	rows   map[int64]*models.Visitor
	nextID int64

	insertErr error
	// updateErr fails any update whose patch touches the column
	updateErr map[string]error
	// insertGate blocks Insert until closed when set
	insertGate    chan struct{}
	insertEntered chan struct{}
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*models.Visitor), updateErr: make(map[string]error)}
}

func (m *memStore) Insert(ctx context.Context, v *models.Visitor) error {
	if m.insertEntered != nil {
		m.insertEntered <- struct{}{}
	}
	if m.insertGate != nil {
		<-m.insertGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.nextID++
	v.ID = m.nextID
	cp := *v
	m.rows[v.ID] = &cp
	return nil
}

func (m *memStore) Update(ctx context.Context, id int64, patch store.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for col := range patch {
		if err := m.updateErr[col]; err != nil {
			return err
		}
	}
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	for col, val := range patch {
		switch col {
		case "photo_url":
			s := val.(string)
			row.PhotoURL = &s
		case "credential":
			row.Credential = val.(string)
		case "full_name":
			row.FullName = val.(string)
		case "id_number":
			row.IDNumber = val.(string)
		case "company":
			row.Company = val.(string)
		case "purpose":
			row.Purpose = val.(string)
		case "other_purpose":
			row.OtherPurpose = val.(string)
		case "checkin_time":
			row.CheckinTime = val.(time.Time)
		case "checkout_time":
			t := val.(time.Time)
			row.CheckoutTime = &t
		}
	}
	return nil
}

func (m *memStore) Delete(ctx context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (*models.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) Query(ctx context.Context, f store.Filter, limit int) ([]models.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Visitor
	for _, row := range m.rows {
		if f.NameContains != "" && !strings.Contains(strings.ToLower(row.FullName), strings.ToLower(f.NameContains)) {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, f store.Filter) (int64, error) {
	rows, err := m.Query(ctx, f, 0)
	return int64(len(rows)), err
}

func (m *memStore) CheckoutIfOpen(ctx context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.CheckoutTime != nil {
		return false, nil
	}
	row.CheckoutTime = &at
	return true, nil
}

func (m *memStore) ListLegacyPurposes(ctx context.Context, known []string, afterID int64, limit int) ([]models.Visitor, error) {
	return nil, errors.New("not supported")
}

type memBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objs: make(map[string][]byte)} }

func (b *memBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.objs[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) PublicURL(key string) string { return "https://blobs.test/photos/" + key }

type printFunc func(ctx context.Context, id int64)

func (f printFunc) ReadyToPrint(ctx context.Context, id int64) { f(ctx, id) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func somchai() *Draft {
	return &Draft{
		IDType:        "citizen",
		FullName:      "สมชาย ใจดี",
		IDNumber:      "1234567890123",
		Phone:         "0891112222",
		ContactPerson: "คุณหนึ่ง",
		Purpose:       "meeting",
		Company:       "ACME",
	}
}
