package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"visitor-kiosk/models"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldKeys is the form's field declaration order. Validation reports
// violations in this order.
var FieldKeys = []string{
	"id_type", "id_number", "full_name", "gender", "company", "phone",
	"contact_person", "purpose", "vehicle_plate", "vehicle_type",
	"chip_serial", "note",
}

var ErrUnknownField = errors.New("unknown form field")

// FormConfig is the operator-editable form configuration: which fields are
// shown and which are mandatory.
type FormConfig struct {
	OrgName  string          `json:"org_name"`
	SiteName string          `json:"site_name"`
	Fields   map[string]bool `json:"fields"`
	Required map[string]bool `json:"required"`
}

// DefaultFormConfig is what a fresh kiosk shows.
func DefaultFormConfig() FormConfig {
	return FormConfig{
		Fields: map[string]bool{
			"id_type":        true,
			"id_number":      false,
			"full_name":      true,
			"gender":         false,
			"company":        true,
			"phone":          true,
			"contact_person": true,
			"purpose":        true,
			"vehicle_plate":  false,
			"vehicle_type":   false,
			"chip_serial":    false,
			"note":           false,
		},
		Required: map[string]bool{
			"id_type":        true,
			"id_number":      true,
			"full_name":      true,
			"phone":          true,
			"contact_person": true,
			"purpose":        true,
		},
	}
}

// Enabled reports a field that is shown on the form.
func (c FormConfig) Enabled(key string) bool { return c.Fields[key] }

// MustFill reports a field that is both required by policy and enabled.
func (c FormConfig) MustFill(key string) bool { return c.Fields[key] && c.Required[key] }

func (c FormConfig) clone() FormConfig {
	out := c
	out.Fields = make(map[string]bool, len(c.Fields))
	for k, v := range c.Fields {
		out.Fields[k] = v
	}
	out.Required = make(map[string]bool, len(c.Required))
	for k, v := range c.Required {
		out.Required[k] = v
	}
	return out
}

func isFieldKey(key string) bool {
	for _, k := range FieldKeys {
		if k == key {
			return true
		}
	}
	return false
}

func checkKeys(m map[string]bool) error {
	for k := range m {
		if !isFieldKey(k) {
			return fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}
	return nil
}

// SettingsService keeps the single kiosk_settings row and a cached copy of
// it so validation does not hit the database on every keystroke.
type SettingsService struct {
	DB     *gorm.DB
	logger *zap.Logger

	mu     sync.RWMutex
	cached *FormConfig
}

func NewSettingsService(db *gorm.DB, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{DB: db, logger: logger}
}

// Snapshot returns the current configuration; defaults when no row exists.
func (s *SettingsService) Snapshot(ctx context.Context) (FormConfig, error) {
	s.mu.RLock()
	if s.cached != nil {
		cfg := s.cached.clone()
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	var row models.KioskSetting
	err := s.DB.WithContext(ctx).Order("id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultFormConfig(), nil
	}
	if err != nil {
		return FormConfig{}, err
	}

	cfg, err := decodeSetting(row)
	if err != nil {
		return FormConfig{}, err
	}
	s.store(cfg)
	return cfg.clone(), nil
}

// Update replaces the configuration. Keys missing from the maps keep their
// current value so a client may send a partial map.
func (s *SettingsService) Update(ctx context.Context, in FormConfig) (FormConfig, error) {
	if err := checkKeys(in.Fields); err != nil {
		return FormConfig{}, err
	}
	if err := checkKeys(in.Required); err != nil {
		return FormConfig{}, err
	}

	cur, err := s.Snapshot(ctx)
	if err != nil {
		return FormConfig{}, err
	}
	next := cur.clone()
	if in.OrgName != "" {
		next.OrgName = in.OrgName
	}
	if in.SiteName != "" {
		next.SiteName = in.SiteName
	}
	for k, v := range in.Fields {
		next.Fields[k] = v
	}
	for k, v := range in.Required {
		next.Required[k] = v
	}

	if err := s.save(ctx, next); err != nil {
		return FormConfig{}, err
	}
	s.logger.Info("form settings updated", zap.Any("fields", next.Fields))
	return next.clone(), nil
}

// Toggle flips one field on or off.
func (s *SettingsService) Toggle(ctx context.Context, key string, enabled bool) (FormConfig, error) {
	return s.Update(ctx, FormConfig{Fields: map[string]bool{key: enabled}})
}

// Seed writes the default row when the table is empty.
func (s *SettingsService) Seed(ctx context.Context, orgName, siteName string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.KioskSetting{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	cfg := DefaultFormConfig()
	cfg.OrgName = orgName
	cfg.SiteName = siteName
	return s.save(ctx, cfg)
}

func (s *SettingsService) save(ctx context.Context, cfg FormConfig) error {
	fields, err := json.Marshal(cfg.Fields)
	if err != nil {
		return err
	}
	required, err := json.Marshal(cfg.Required)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.KioskSetting
		err := tx.Order("id ASC").First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row.OrgName = cfg.OrgName
		row.SiteName = cfg.SiteName
		row.Fields = datatypes.JSON(fields)
		row.Required = datatypes.JSON(required)
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}
	s.store(cfg)
	return nil
}

func (s *SettingsService) store(cfg FormConfig) {
	c := cfg.clone()
	s.mu.Lock()
	s.cached = &c
	s.mu.Unlock()
}

func decodeSetting(row models.KioskSetting) (FormConfig, error) {
	cfg := DefaultFormConfig()
	cfg.OrgName = row.OrgName
	cfg.SiteName = row.SiteName
	if len(row.Fields) > 0 {
		var fields map[string]bool
		if err := json.Unmarshal(row.Fields, &fields); err != nil {
			return FormConfig{}, fmt.Errorf("decode fields: %w", err)
		}
		for k, v := range fields {
			cfg.Fields[k] = v
		}
	}
	if len(row.Required) > 0 {
		var required map[string]bool
		if err := json.Unmarshal(row.Required, &required); err != nil {
			return FormConfig{}, fmt.Errorf("decode required: %w", err)
		}
		for k, v := range required {
			cfg.Required[k] = v
		}
	}
	return cfg, nil
}
