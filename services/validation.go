package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"visitor-kiosk/models"
)

// Reason says why a field was rejected.
type Reason string

const (
	ReasonMissingField  Reason = "missing_field"
	ReasonTooShort      Reason = "too_short"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonMissingOther  Reason = "missing_other"
)

const minIDNumberLen = 6

var phonePattern = regexp.MustCompile(`^\d{9,10}$`)

type FieldError struct {
	Field  string `json:"field"`
	Reason Reason `json:"reason"`
}

// FieldErrors is ordered by field declaration order.
type FieldErrors []FieldError

// First is the violation the form should focus.
func (fe FieldErrors) First() (FieldError, bool) {
	if len(fe) == 0 {
		return FieldError{}, false
	}
	return fe[0], true
}

// Map returns field -> reason, the shape the kiosk highlights from.
func (fe FieldErrors) Map() map[string]Reason {
	m := make(map[string]Reason, len(fe))
	for _, f := range fe {
		m[f.Field] = f.Reason
	}
	return m
}

// Draft is a check-in that has not been persisted yet.
type Draft struct {
	IDType        string `json:"id_type"`
	IDNumber      string `json:"id_number"`
	FullName      string `json:"full_name"`
	Gender        string `json:"gender"`
	Company       string `json:"company"`
	Phone         string `json:"phone"`
	ContactPerson string `json:"contact_person"`
	Purpose       string `json:"purpose"`
	OtherPurpose  string `json:"other_purpose"`
	VehiclePlate  string `json:"vehicle_plate"`
	VehicleType   string `json:"vehicle_type"`
	ChipSerial    string `json:"chip_serial"`
	Note          string `json:"note"`

	Photo     []byte `json:"-"`
	PhotoType string `json:"-"`
}

// Value returns the trimmed value of a form field by key.
func (d *Draft) Value(key string) string {
	var v string
	switch key {
	case "id_type":
		v = d.IDType
	case "id_number":
		v = d.IDNumber
	case "full_name":
		v = d.FullName
	case "gender":
		v = d.Gender
	case "company":
		v = d.Company
	case "phone":
		v = d.Phone
	case "contact_person":
		v = d.ContactPerson
	case "purpose":
		v = d.Purpose
	case "vehicle_plate":
		v = d.VehiclePlate
	case "vehicle_type":
		v = d.VehicleType
	case "chip_serial":
		v = d.ChipSerial
	case "note":
		v = d.Note
	}
	return strings.TrimSpace(v)
}

func (d *Draft) fingerprint() string {
	return strings.Join([]string{d.Value("full_name"), d.Value("id_number"), d.Value("phone"), d.Value("contact_person")}, "\x1f")
}

// Validate checks a draft against the active form configuration and
// returns every violation. A field is only required when it is enabled.
func Validate(d *Draft, cfg FormConfig) FieldErrors {
	var errs FieldErrors
	for _, key := range FieldKeys {
		val := d.Value(key)
		if val == "" {
			if cfg.MustFill(key) {
				errs = append(errs, FieldError{Field: key, Reason: ReasonMissingField})
			}
			continue
		}
		if r, bad := checkValue(key, val); bad {
			errs = append(errs, FieldError{Field: key, Reason: r})
			continue
		}
		if key == "purpose" {
			p := NormalizePurpose(val, d.OtherPurpose)
			if p.IsOther() && strings.TrimSpace(p.Other) == "" {
				errs = append(errs, FieldError{Field: key, Reason: ReasonMissingOther})
			}
		}
	}
	return errs
}

// checkValue applies the per-field rules that hold for any non-empty value.
func checkValue(key, val string) (Reason, bool) {
	switch key {
	case "id_number":
		if utf8.RuneCountInString(val) < minIDNumberLen {
			return ReasonTooShort, true
		}
	case "phone":
		if !phonePattern.MatchString(val) {
			return ReasonInvalidFormat, true
		}
	case "id_type":
		if _, ok := models.ParseIDType(val); !ok {
			return ReasonInvalidFormat, true
		}
	}
	return "", false
}
