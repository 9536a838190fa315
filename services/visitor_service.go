package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"visitor-kiosk/credential"
	"visitor-kiosk/models"
	"visitor-kiosk/storage"
	"visitor-kiosk/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// FormSource supplies the form configuration snapshot used at validate time.
type FormSource interface {
	Snapshot(ctx context.Context) (FormConfig, error)
}

// PrintNotifier receives the ready-to-print signal once the final
// credential is stored. Only the id is handed over.
type PrintNotifier interface {
	ReadyToPrint(ctx context.Context, id int64)
}

type VisitorOption func(*VisitorService)

func WithRecentCache(c *RecentCache) VisitorOption {
	return func(s *VisitorService) { s.recent = c }
}

func WithPrintNotifier(p PrintNotifier) VisitorOption {
	return func(s *VisitorService) { s.printer = p }
}

func WithLogger(l *zap.Logger) VisitorOption {
	return func(s *VisitorService) { s.logger = l }
}

func WithClock(now func() time.Time) VisitorOption {
	return func(s *VisitorService) { s.now = now }
}

func WithMetrics(reg prometheus.Registerer) VisitorOption {
	return func(s *VisitorService) { s.metrics = newVisitorMetrics(reg) }
}

// VisitorService owns the check-in / checkout lifecycle of a visitor record.
type VisitorService struct {
	store    store.VisitorStore
	blobs    storage.BlobStore
	settings FormSource
	recent   *RecentCache
	printer  PrintNotifier
	logger   *zap.Logger
	metrics  *visitorMetrics
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewVisitorService(st store.VisitorStore, blobs storage.BlobStore, settings FormSource, opts ...VisitorOption) *VisitorService {
	s := &VisitorService{
		store:    st,
		blobs:    blobs,
		settings: settings,
		logger:   zap.NewNop(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recent == nil {
		s.recent = NewRecentCache(DefaultRecentCap, nil, s.logger)
	}
	if s.metrics == nil {
		s.metrics = newVisitorMetrics(nil)
	}
	return s
}

func (s *VisitorService) Recent() *RecentCache { return s.recent }

// Validate checks a draft against the current form configuration.
func (s *VisitorService) Validate(ctx context.Context, d *Draft) (FieldErrors, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Validate(d, cfg), nil
}

// Submit persists a draft. Only the insert is fatal; photo upload and the
// final credential patch are logged and skipped on failure. On success the
// draft is cleared.
func (s *VisitorService) Submit(ctx context.Context, d *Draft) (*models.Visitor, error) {
	fieldErrs, err := s.Validate(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	fp := d.fingerprint()
	if !s.begin(fp) {
		return nil, ErrSubmitInFlight
	}
	defer s.end(fp)

	checkin := s.now().UTC()
	fullName := d.Value("full_name")
	idNumber := d.Value("id_number")

	provisional, err := credential.Marshal(credential.Provisional(fullName, idNumber, checkin))
	if err != nil {
		return nil, err
	}

	v := draftToVisitor(d)
	v.CheckinTime = checkin
	v.Credential = provisional

	if err := s.store.Insert(ctx, v); err != nil {
		s.metrics.insertFailures.Inc()
		s.logger.Error("visitor insert failed", zap.String("full_name", fullName), zap.Error(err))
		return nil, &PersistError{Err: err}
	}
	s.metrics.checkins.Inc()
	s.logger.Info("visitor checked in", zap.Int64("id", v.ID), zap.String("full_name", fullName))

	if len(d.Photo) > 0 {
		if err := s.attachPhoto(ctx, v, d.Photo, d.PhotoType); err != nil {
			s.metrics.photoFailures.Inc()
			s.logger.Warn("photo upload failed, visitor kept without photo",
				zap.Int64("id", v.ID), zap.Error(err))
		}
	}

	if err := s.finalizeCredential(ctx, v); err != nil {
		s.metrics.credFailures.Inc()
		s.logger.Warn("final credential patch failed",
			zap.Int64("id", v.ID), zap.Error(err))
	}

	s.recent.Remember(RecentEntry{
		FullName:      fullName,
		Company:       v.Company,
		ContactPerson: v.ContactPerson,
		VehiclePlate:  v.VehiclePlate,
		VehicleType:   v.VehicleType,
		Phone:         v.Phone,
		SeenAt:        checkin,
	})

	if s.printer != nil {
		s.printer.ReadyToPrint(ctx, v.ID)
	}

	*d = Draft{}
	return v, nil
}

func (s *VisitorService) begin(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[fp]; busy {
		return false
	}
	s.inflight[fp] = struct{}{}
	return true
}

func (s *VisitorService) end(fp string) {
	s.mu.Lock()
	delete(s.inflight, fp)
	s.mu.Unlock()
}

// PhotoKey is the blob key for a visitor photo.
func PhotoKey(id int64) string {
	return strconv.FormatInt(id, 10) + ".jpg"
}

func (s *VisitorService) attachPhoto(ctx context.Context, v *models.Visitor, data []byte, contentType string) error {
	if s.blobs == nil {
		return fmt.Errorf("%w: no blob store configured", ErrUploadFailed)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := PhotoKey(v.ID)
	if err := s.blobs.Upload(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUploadFailed, key, err)
	}
	url := s.blobs.PublicURL(key)
	if err := s.store.Update(ctx, v.ID, store.Patch{"photo_url": url}); err != nil {
		return fmt.Errorf("%w: patch photo_url: %w", ErrUploadFailed, err)
	}
	v.PhotoURL = &url
	return nil
}

func (s *VisitorService) finalizeCredential(ctx context.Context, v *models.Visitor) error {
	final, err := credential.Marshal(credential.Final(v.ID, v.FullName, v.IDNumber, v.CheckinTime))
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, v.ID, store.Patch{"credential": final}); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialPatchFailed, err)
	}
	v.Credential = final
	return nil
}

func draftToVisitor(d *Draft) *models.Visitor {
	idType, _ := models.ParseIDType(d.Value("id_type"))
	p := NormalizePurpose(d.Value("purpose"), d.OtherPurpose)
	return &models.Visitor{
		IDType:        idType,
		IDNumber:      d.Value("id_number"),
		FullName:      d.Value("full_name"),
		Gender:        d.Value("gender"),
		Company:       d.Value("company"),
		Phone:         d.Value("phone"),
		ContactPerson: d.Value("contact_person"),
		Purpose:       string(p.Tag),
		OtherPurpose:  p.Other,
		VehiclePlate:  d.Value("vehicle_plate"),
		VehicleType:   d.Value("vehicle_type"),
		ChipSerial:    d.Value("chip_serial"),
		Note:          d.Value("note"),
	}
}

func (s *VisitorService) Lookup(ctx context.Context, id int64) (*models.Visitor, error) {
	v, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVisitorNotFound
	}
	return v, err
}

// Checkout stamps the checkout time once. A second call reports
// ErrAlreadyCheckedOut and leaves the first timestamp alone.
func (s *VisitorService) Checkout(ctx context.Context, id int64) (*models.Visitor, error) {
	ok, err := s.store.CheckoutIfOpen(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	v, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return v, ErrAlreadyCheckedOut
	}
	s.metrics.checkouts.Inc()
	s.logger.Info("visitor checked out", zap.Int64("id", id))
	return v, nil
}

// Remove hard-deletes a batch of records.
func (s *VisitorService) Remove(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	n, err := s.store.Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("visitors removed", zap.Int64s("ids", ids), zap.Int64("rows", n))
	return n, nil
}

// EditPatch is an operator correction. Nil fields are left unchanged.
type EditPatch struct {
	IDType        *string    `json:"id_type"`
	IDNumber      *string    `json:"id_number"`
	FullName      *string    `json:"full_name"`
	Gender        *string    `json:"gender"`
	Company       *string    `json:"company"`
	Phone         *string    `json:"phone"`
	ContactPerson *string    `json:"contact_person"`
	Purpose       *string    `json:"purpose"`
	OtherPurpose  *string    `json:"other_purpose"`
	VehiclePlate  *string    `json:"vehicle_plate"`
	VehicleType   *string    `json:"vehicle_type"`
	ChipSerial    *string    `json:"chip_serial"`
	Note          *string    `json:"note"`
	CheckinTime   *time.Time `json:"checkin_time"`
	CheckoutTime  *time.Time `json:"checkout_time"`
}

// Edit rewrites mutable fields. Concurrent edits are last-write-wins. The
// checkout time can be moved but not cleared and never before checkin;
// checkin cannot move into the future. The name and required fields
// cannot be blanked.
func (s *VisitorService) Edit(ctx context.Context, id int64, p EditPatch) (*models.Visitor, error) {
	cur, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	patch := store.Patch{}
	var fieldErrs FieldErrors
	setText := func(col string, val *string) {
		if val == nil {
			return
		}
		v := strings.TrimSpace(*val)
		if v == "" {
			// the name is on the credential, it can never be blanked
			if col == "full_name" || cfg.MustFill(col) {
				fieldErrs = append(fieldErrs, FieldError{Field: col, Reason: ReasonMissingField})
				return
			}
		} else if r, bad := checkValue(col, v); bad {
			fieldErrs = append(fieldErrs, FieldError{Field: col, Reason: r})
			return
		}
		patch[col] = v
	}
	setText("id_number", p.IDNumber)
	setText("full_name", p.FullName)
	setText("gender", p.Gender)
	setText("company", p.Company)
	setText("phone", p.Phone)
	setText("contact_person", p.ContactPerson)
	setText("vehicle_plate", p.VehiclePlate)
	setText("vehicle_type", p.VehicleType)
	setText("chip_serial", p.ChipSerial)
	setText("note", p.Note)

	if p.IDType != nil {
		t, ok := models.ParseIDType(*p.IDType)
		if !ok {
			fieldErrs = append(fieldErrs, FieldError{Field: "id_type", Reason: ReasonInvalidFormat})
		} else {
			patch["id_type"] = string(t)
		}
	}

	if p.Purpose != nil || p.OtherPurpose != nil {
		raw, other := cur.Purpose, cur.OtherPurpose
		if p.Purpose != nil {
			raw = *p.Purpose
		}
		if p.OtherPurpose != nil {
			other = *p.OtherPurpose
		}
		np := NormalizePurpose(raw, other)
		if np.IsOther() && strings.TrimSpace(np.Other) == "" {
			fieldErrs = append(fieldErrs, FieldError{Field: "purpose", Reason: ReasonMissingOther})
		} else {
			patch["purpose"] = string(np.Tag)
			patch["other_purpose"] = np.Other
		}
	}
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	checkin := cur.CheckinTime
	if p.CheckinTime != nil {
		checkin = *p.CheckinTime
		// a later checkout stamps now, so checkin cannot sit in the future
		if checkin.After(s.now()) {
			return nil, ErrInvalidTimeRange
		}
		patch["checkin_time"] = checkin
	}
	checkout := cur.CheckoutTime
	if p.CheckoutTime != nil {
		checkout = p.CheckoutTime
		patch["checkout_time"] = *checkout
	}
	if checkout != nil && checkout.Before(checkin) {
		return nil, ErrInvalidTimeRange
	}

	// identity or checkin changed: the printed credential has to follow
	_, nameChanged := patch["full_name"]
	_, idChanged := patch["id_number"]
	if nameChanged || idChanged || p.CheckinTime != nil {
		name, idNum := cur.FullName, cur.IDNumber
		if nameChanged {
			name = patch["full_name"].(string)
		}
		if idChanged {
			idNum = patch["id_number"].(string)
		}
		final, err := credential.Marshal(credential.Final(cur.ID, name, idNum, checkin))
		if err != nil {
			return nil, err
		}
		patch["credential"] = final
	}

	if len(patch) > 0 {
		if err := s.store.Update(ctx, id, patch); err != nil {
			return nil, err
		}
		s.logger.Info("visitor edited", zap.Int64("id", id), zap.Int("fields", len(patch)))
	}
	return s.Lookup(ctx, id)
}

// RetryPhoto re-uploads a photo for an existing record.
func (s *VisitorService) RetryPhoto(ctx context.Context, id int64, data []byte, contentType string) (*models.Visitor, error) {
	if len(data) == 0 {
		return nil, ErrNoPhoto
	}
	v, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachPhoto(ctx, v, data, contentType); err != nil {
		return nil, err
	}
	return v, nil
}

// RegenerateCredential writes the final credential again, for records whose
// patch failed at check-in time.
func (s *VisitorService) RegenerateCredential(ctx context.Context, id int64) (*models.Visitor, error) {
	v, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.finalizeCredential(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Printable returns the record with a final credential. A row still holding
// the provisional one (patch failed, or read before Submit finished) is
// healed; if that write fails the final credential is still returned.
func (s *VisitorService) Printable(ctx context.Context, id int64) (*models.Visitor, error) {
	v, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, err := credential.Parse(v.Credential); err == nil && p.IsFinal() && *p.ID == v.ID {
		return v, nil
	}
	if err := s.finalizeCredential(ctx, v); err != nil {
		s.logger.Warn("credential heal failed", zap.Int64("id", id), zap.Error(err))
		final, merr := credential.Marshal(credential.Final(v.ID, v.FullName, v.IDNumber, v.CheckinTime))
		if merr != nil {
			return nil, merr
		}
		v.Credential = final
	}
	return v, nil
}

// Suggest returns recent visitors matching a name fragment.
func (s *VisitorService) Suggest(q string, limit int) []RecentEntry {
	return s.recent.Suggest(q, limit)
}
