package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"visitor-kiosk/models"
	"visitor-kiosk/realtime"
)

// GormVisitorStore implements VisitorStore on gorm and announces every
// committed mutation on the change feed.
type GormVisitorStore struct {
	db     *gorm.DB
	pub    realtime.Publisher
	logger *zap.Logger
}

func NewGormVisitorStore(db *gorm.DB, pub realtime.Publisher, logger *zap.Logger) *GormVisitorStore {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormVisitorStore{db: db, pub: pub, logger: logger}
}

func (s *GormVisitorStore) notify(ctx context.Context, t realtime.EventType, ids ...int64) {
	ev := realtime.ChangeEvent{Type: t, Table: realtime.TableVisitors, IDs: ids}
	if err := s.pub.Publish(ctx, ev); err != nil {
		// the row is committed; dashboards catch up on their next event
		s.logger.Warn("publish change event failed",
			zap.String("type", string(t)), zap.Int64s("ids", ids), zap.Error(err))
	}
}

func (s *GormVisitorStore) Insert(ctx context.Context, v *models.Visitor) error {
	v.CheckinTime = v.CheckinTime.UTC()
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return err
	}
	s.notify(ctx, realtime.EventInsert, v.ID)
	return nil
}

func (s *GormVisitorStore) Update(ctx context.Context, id int64, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	for k, val := range patch {
		switch tv := val.(type) {
		case time.Time:
			patch[k] = tv.UTC()
		case *time.Time:
			if tv != nil {
				u := tv.UTC()
				patch[k] = &u
			}
		}
	}
	res := s.db.WithContext(ctx).
		Model(&models.Visitor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}(patch))
	if res.Error != nil {
		return res.Error
	}
	s.notify(ctx, realtime.EventUpdate, id)
	return nil
}

func (s *GormVisitorStore) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Visitor{})
	if res.Error != nil {
		return 0, res.Error
	}
	s.notify(ctx, realtime.EventDelete, ids...)
	return res.RowsAffected, nil
}

func (s *GormVisitorStore) Get(ctx context.Context, id int64) (*models.Visitor, error) {
	var v models.Visitor
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *GormVisitorStore) Query(ctx context.Context, f Filter, limit int) ([]models.Visitor, error) {
	var out []models.Visitor
	q := applyFilter(s.db.WithContext(ctx).Model(&models.Visitor{}), f).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count is a head-only query, no rows are materialised.
func (s *GormVisitorStore) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	err := applyFilter(s.db.WithContext(ctx).Model(&models.Visitor{}), f).Count(&n).Error
	return n, err
}

func (s *GormVisitorStore) CheckoutIfOpen(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Visitor{}).
		Where("id = ? AND checkout_time IS NULL", id).
		Update("checkout_time", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.notify(ctx, realtime.EventUpdate, id)
	return true, nil
}

func (s *GormVisitorStore) ListLegacyPurposes(ctx context.Context, known []string, afterID int64, limit int) ([]models.Visitor, error) {
	var out []models.Visitor
	q := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("purpose <> ''").
		Where("purpose NOT IN ?", known).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.CheckinFrom != nil {
		q = q.Where("checkin_time >= ?", f.CheckinFrom.UTC())
	}
	if f.CheckinTo != nil {
		q = q.Where("checkin_time <= ?", f.CheckinTo.UTC())
	}
	if f.CheckoutFrom != nil {
		q = q.Where("checkout_time >= ?", f.CheckoutFrom.UTC())
	}
	if f.CheckoutTo != nil {
		q = q.Where("checkout_time <= ?", f.CheckoutTo.UTC())
	}
	if f.OnSite != nil {
		if *f.OnSite {
			q = q.Where("checkout_time IS NULL")
		} else {
			q = q.Where("checkout_time IS NOT NULL")
		}
	}
	if name := strings.TrimSpace(f.NameContains); name != "" {
		q = q.Where("LOWER(full_name) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(strings.ToLower(name))+"%")
	}
	return q
}
