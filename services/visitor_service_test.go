package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"visitor-kiosk/credential"
	"visitor-kiosk/models"
	"visitor-kiosk/store"
	"visitor-kiosk/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)

func newTestService(st store.VisitorStore, blobs *memBlobs, opts ...VisitorOption) (*VisitorService, *fakeClock) {
	clock := &fakeClock{t: t0}
	opts = append([]VisitorOption{WithClock(clock.Now), WithLogger(zap.NewNop())}, opts...)
	return NewVisitorService(st, blobs, allEnabled(), opts...), clock
}

func finalID(t *testing.T, v *models.Visitor) int64 {
	t.Helper()
	p, err := credential.Parse(v.Credential)
	require.NoError(t, err)
	require.True(t, p.IsFinal(), "credential %q is provisional", v.Credential)
	return *p.ID
}

func TestValidateRequiredOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultFormConfig()
	for _, k := range FieldKeys {
		cfg.Required[k] = true
		cfg.Fields[k] = false
	}
	errs := Validate(&Draft{}, cfg)
	assert.Empty(t, errs)

	for _, k := range FieldKeys {
		cfg.Fields[k] = true
		errs := Validate(&Draft{}, cfg)
		require.Len(t, errs, 1, k)
		assert.Equal(t, FieldError{Field: k, Reason: ReasonMissingField}, errs[0])
		cfg.Fields[k] = false
	}
}

func TestValidatePhoneFormat(t *testing.T) {
	cfg := FormConfig(allEnabled())
	for _, ok := range []string{"0812345678", "081234567"} {
		d := somchai()
		d.Phone = ok
		assert.Empty(t, Validate(d, cfg), ok)
	}
	for _, bad := range []string{"12345", "08-1234-5678", "08123456789", "abcdefghi"} {
		d := somchai()
		d.Phone = bad
		assert.Equal(t, FieldErrors{{Field: "phone", Reason: ReasonInvalidFormat}}, Validate(d, cfg), bad)
	}
}

func TestValidateReportsAllInDeclarationOrder(t *testing.T) {
	cfg := FormConfig(allEnabled())
	d := &Draft{IDType: "citizen", IDNumber: "123", Phone: "12", Purpose: "other"}
	errs := Validate(d, cfg)

	assert.Equal(t, FieldErrors{
		{Field: "id_number", Reason: ReasonTooShort},
		{Field: "full_name", Reason: ReasonMissingField},
		{Field: "phone", Reason: ReasonInvalidFormat},
		{Field: "contact_person", Reason: ReasonMissingField},
		{Field: "purpose", Reason: ReasonMissingOther},
	}, errs)

	first, ok := errs.First()
	require.True(t, ok)
	assert.Equal(t, "id_number", first.Field)
	assert.Equal(t, ReasonMissingField, errs.Map()["contact_person"])
}

func TestSubmitMissingContactNeverInserts(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())

	d := somchai()
	d.ContactPerson = "  "
	v, err := svc.Submit(context.Background(), d)
	assert.Nil(t, v)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]Reason{"contact_person": ReasonMissingField}, verr.Fields.Map())
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Empty(t, st.rows)
	assert.Equal(t, "สมชาย ใจดี", d.FullName, "draft kept for correction")
}

func TestSubmitOtherPurposeNeedsText(t *testing.T) {
	svc, _ := newTestService(newMemStore(), newMemBlobs())

	d := somchai()
	d.Purpose = "other"
	d.OtherPurpose = " "
	_, err := svc.Submit(context.Background(), d)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldErrors{{Field: "purpose", Reason: ReasonMissingOther}}, verr.Fields)
}

func TestSubmitPersistsWithFinalCredential(t *testing.T) {
	db := storetest.Open(t)
	st := store.NewGormVisitorStore(db, nil, nil)
	blobs := newMemBlobs()

	var printed []int64
	var credAtPrint string
	printer := printFunc(func(ctx context.Context, id int64) {
		printed = append(printed, id)
		row, err := st.Get(ctx, id)
		require.NoError(t, err)
		credAtPrint = row.Credential
	})
	svc, _ := newTestService(st, blobs, WithPrintNotifier(printer))

	d := somchai()
	d.Photo = []byte{0xff, 0xd8, 0xff}
	v, err := svc.Submit(context.Background(), d)
	require.NoError(t, err)

	assert.NotZero(t, v.ID)
	assert.Nil(t, v.CheckoutTime)
	assert.Equal(t, v.ID, finalID(t, v))
	assert.Equal(t, Draft{}, *d)

	stored, err := st.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, finalID(t, stored))
	require.NotNil(t, stored.PhotoURL)
	assert.Equal(t, "https://blobs.test/photos/1.jpg", *stored.PhotoURL)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, blobs.objs[PhotoKey(v.ID)])
	assert.Equal(t, "meeting", stored.Purpose)
	assert.Equal(t, models.IDTypeCitizen, stored.IDType)

	assert.Equal(t, []int64{v.ID}, printed)
	assert.Equal(t, stored.Credential, credAtPrint)

	e, ok := svc.Recent().Lookup("สมชาย ใจดี")
	require.True(t, ok)
	assert.Equal(t, "คุณหนึ่ง", e.ContactPerson)
	assert.Equal(t, "ACME", e.Company)
}

func TestSubmitUploadFailureStillFinal(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	blobs.err = errors.New("network unreachable")
	svc, _ := newTestService(st, blobs)

	d := somchai()
	d.Photo = []byte{1, 2, 3}
	v, err := svc.Submit(context.Background(), d)
	require.NoError(t, err)

	stored, err := st.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Nil(t, stored.CheckoutTime)
	assert.Nil(t, stored.PhotoURL)
	assert.Equal(t, stored.ID, finalID(t, stored))
}

func TestSubmitCredentialPatchFailureKeepsCheckin(t *testing.T) {
	st := newMemStore()
	st.updateErr["credential"] = errors.New("timeout")
	svc, _ := newTestService(st, newMemBlobs())

	v, err := svc.Submit(context.Background(), somchai())
	require.NoError(t, err)

	p, err := credential.Parse(v.Credential)
	require.NoError(t, err)
	assert.False(t, p.IsFinal())

	// operator retry once the store is back
	delete(st.updateErr, "credential")
	v, err = svc.RegenerateCredential(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, finalID(t, v))
}

func TestSubmitInsertFailureSurfacesMessage(t *testing.T) {
	st := newMemStore()
	st.insertErr = errors.New(`duplicate key value violates unique constraint "visitors_pkey"`)
	printed := false
	svc, _ := newTestService(st, newMemBlobs(), WithPrintNotifier(printFunc(func(context.Context, int64) { printed = true })))

	d := somchai()
	v, err := svc.Submit(context.Background(), d)
	assert.Nil(t, v)

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.Equal(t, `duplicate key value violates unique constraint "visitors_pkey"`, err.Error())
	assert.False(t, printed)
	assert.Equal(t, "สมชาย ใจดี", d.FullName)
	assert.Zero(t, svc.Recent().Len())
}

func TestSubmitRejectsDoubleSubmit(t *testing.T) {
	st := newMemStore()
	st.insertGate = make(chan struct{})
	st.insertEntered = make(chan struct{}, 2)
	svc, _ := newTestService(st, newMemBlobs())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), somchai())
		done <- err
	}()
	<-st.insertEntered

	_, err := svc.Submit(context.Background(), somchai())
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(st.insertGate)
	require.NoError(t, <-done)
	assert.Len(t, st.rows, 1)
}

func TestCheckoutOnlyOnce(t *testing.T) {
	db := storetest.Open(t)
	st := store.NewGormVisitorStore(db, nil, nil)
	svc, clock := newTestService(st, newMemBlobs())
	ctx := context.Background()

	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	out, err := svc.Checkout(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, out.CheckoutTime)
	first := out.CheckoutTime.UTC()
	assert.True(t, first.Equal(t0.Add(2*time.Hour)))

	clock.Advance(time.Hour)
	again, err := svc.Checkout(ctx, v.ID)
	assert.ErrorIs(t, err, ErrAlreadyCheckedOut)
	require.NotNil(t, again.CheckoutTime)
	assert.True(t, again.CheckoutTime.Equal(first))

	_, err = svc.Checkout(ctx, 999)
	assert.ErrorIs(t, err, ErrVisitorNotFound)
}

func TestConcurrentCheckoutOneWinner(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())
	v, err := svc.Submit(context.Background(), somchai())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), v.ID)
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyCheckedOut):
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
}

func TestEditRejectsCheckoutBeforeCheckin(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())
	ctx := context.Background()
	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	early := t0.Add(-time.Minute)
	_, err = svc.Edit(ctx, v.ID, EditPatch{CheckoutTime: &early})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	later := t0.Add(3 * time.Hour)
	out, err := svc.Edit(ctx, v.ID, EditPatch{CheckoutTime: &later})
	require.NoError(t, err)
	assert.True(t, out.CheckoutTime.Equal(later))

	// moving checkin past the stored checkout is also refused
	lateCheckin := t0.Add(4 * time.Hour)
	_, err = svc.Edit(ctx, v.ID, EditPatch{CheckinTime: &lateCheckin})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestEditRejectsFutureCheckin(t *testing.T) {
	db := storetest.Open(t)
	st := store.NewGormVisitorStore(db, nil, nil)
	svc, clock := newTestService(st, newMemBlobs())
	ctx := context.Background()
	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	future := t0.Add(2 * time.Hour)
	_, err = svc.Edit(ctx, v.ID, EditPatch{CheckinTime: &future})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	earlier := t0.Add(-30 * time.Minute)
	_, err = svc.Edit(ctx, v.ID, EditPatch{CheckinTime: &earlier})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	out, err := svc.Checkout(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, out.CheckoutTime.Before(out.CheckinTime))
}

func TestEditRefusesBlankingRequiredText(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())
	ctx := context.Background()
	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	blank := "  "
	_, err = svc.Edit(ctx, v.ID, EditPatch{FullName: &blank, ContactPerson: &blank})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonMissingField, verr.Fields.Map()["full_name"])
	assert.Equal(t, ReasonMissingField, verr.Fields.Map()["contact_person"])

	// optional text can still be cleared
	out, err := svc.Edit(ctx, v.ID, EditPatch{Company: &blank})
	require.NoError(t, err)
	assert.Empty(t, out.Company)
	assert.Equal(t, "สมชาย ใจดี", out.FullName)
}

func TestPrintableHealsProvisionalCredential(t *testing.T) {
	st := newMemStore()
	st.updateErr["credential"] = errors.New("timeout")
	svc, _ := newTestService(st, newMemBlobs())
	ctx := context.Background()
	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	// store still down: the slip gets a final credential anyway
	out, err := svc.Printable(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, finalID(t, out))

	delete(st.updateErr, "credential")
	_, err = svc.Printable(ctx, v.ID)
	require.NoError(t, err)
	stored, err := svc.Lookup(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, finalID(t, stored))

	_, err = svc.Printable(ctx, 404)
	assert.ErrorIs(t, err, ErrVisitorNotFound)
}

func TestEditRefreshesCredential(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())
	ctx := context.Background()
	v, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)

	name := "สมชาย ใจดีมาก"
	purpose := "อื่น ๆ: ตรวจเยี่ยม"
	out, err := svc.Edit(ctx, v.ID, EditPatch{FullName: &name, Purpose: &purpose})
	require.NoError(t, err)

	p, err := credential.Parse(out.Credential)
	require.NoError(t, err)
	assert.Equal(t, name, p.FullName)
	assert.Equal(t, v.ID, *p.ID)
	assert.Equal(t, "other", out.Purpose)
	assert.Equal(t, "ตรวจเยี่ยม", out.OtherPurpose)

	bad := "12"
	_, err = svc.Edit(ctx, v.ID, EditPatch{Phone: &bad})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Edit(ctx, 404, EditPatch{FullName: &name})
	assert.ErrorIs(t, err, ErrVisitorNotFound)
}

func TestRemove(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestService(st, newMemBlobs())
	ctx := context.Background()

	_, err := svc.Remove(ctx, nil)
	assert.ErrorIs(t, err, ErrNoIDs)

	a, err := svc.Submit(ctx, somchai())
	require.NoError(t, err)
	d := somchai()
	d.FullName = "สมหญิง"
	b, err := svc.Submit(ctx, d)
	require.NoError(t, err)

	n, err := svc.Remove(ctx, []int64{a.ID, b.ID, 77})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	_, err = svc.Lookup(ctx, a.ID)
	assert.ErrorIs(t, err, ErrVisitorNotFound)
}

func TestRetryPhoto(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	blobs.err = errors.New("offline")
	svc, _ := newTestService(st, blobs)
	ctx := context.Background()

	d := somchai()
	d.Photo = []byte{9}
	v, err := svc.Submit(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, v.PhotoURL)

	blobs.err = nil
	v, err = svc.RetryPhoto(ctx, v.ID, []byte{9, 9}, "image/jpeg")
	require.NoError(t, err)
	require.NotNil(t, v.PhotoURL)
	assert.Equal(t, []byte{9, 9}, blobs.objs[PhotoKey(v.ID)])

	_, err = svc.RetryPhoto(ctx, v.ID, nil, "")
	assert.ErrorIs(t, err, ErrNoPhoto)
}
