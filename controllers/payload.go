package controllers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"visitor-kiosk/services"
)

// payload is a loosely typed request body. The kiosk posts camelCase, the
// older dashboard snake_case, so every lookup takes a list of aliases.
type payload map[string]interface{}

func (p payload) has(keys ...string) (string, bool) {
	for _, k := range keys {
		if _, ok := p[k]; ok {
			return k, true
		}
	}
	return "", false
}

func (p payload) getString(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			switch vv := v.(type) {
			case string:
				s := strings.TrimSpace(vv)
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(vv, 'f', -1, 64)
			case fmt.Stringer:
				s := strings.TrimSpace(vv.String())
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// getStringPtr returns nil when none of the keys is present at all, so a
// PATCH can tell "not sent" from "cleared".
func (p payload) getStringPtr(keys ...string) *string {
	k, ok := p.has(keys...)
	if !ok {
		return nil
	}
	s := ""
	if v := p[k]; v != nil {
		s = p.getString(k)
	}
	return &s
}

func (p payload) getTimePtr(keys ...string) (*time.Time, error) {
	k, ok := p.has(keys...)
	if !ok {
		return nil, nil
	}
	raw := p.getString(k)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time for %s: %q", k, raw)
}

func (p payload) getInt64s(keys ...string) []int64 {
	for _, k := range keys {
		raw, ok := p[k].([]interface{})
		if !ok {
			continue
		}
		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			switch vv := v.(type) {
			case float64:
				if vv > 0 {
					ids = append(ids, int64(vv))
				}
			case string:
				if id, err := strconv.ParseInt(strings.TrimSpace(vv), 10, 64); err == nil && id > 0 {
					ids = append(ids, id)
				}
			}
		}
		return ids
	}
	return nil
}

// draft maps a kiosk submission onto a services.Draft. The photo is left to
// the caller.
func (p payload) draft() services.Draft {
	return services.Draft{
		IDType:        p.getString("idType", "id_type", "documentType"),
		IDNumber:      p.getString("idNumber", "id_number", "documentNumber"),
		FullName:      p.getString("fullName", "full_name", "name"),
		Gender:        p.getString("gender"),
		Company:       p.getString("company"),
		Phone:         p.getString("phone"),
		ContactPerson: p.getString("contactPerson", "contact_person"),
		Purpose:       p.getString("purpose"),
		OtherPurpose:  p.getString("otherPurpose", "other_purpose"),
		VehiclePlate:  p.getString("vehiclePlate", "vehicle_plate"),
		VehicleType:   p.getString("vehicleType", "vehicle_type"),
		ChipSerial:    p.getString("chipSerial", "chip_serial"),
		Note:          p.getString("note"),
	}
}

func (p payload) editPatch() (services.EditPatch, error) {
	ep := services.EditPatch{
		IDType:        p.getStringPtr("idType", "id_type"),
		IDNumber:      p.getStringPtr("idNumber", "id_number"),
		FullName:      p.getStringPtr("fullName", "full_name"),
		Gender:        p.getStringPtr("gender"),
		Company:       p.getStringPtr("company"),
		Phone:         p.getStringPtr("phone"),
		ContactPerson: p.getStringPtr("contactPerson", "contact_person"),
		Purpose:       p.getStringPtr("purpose"),
		OtherPurpose:  p.getStringPtr("otherPurpose", "other_purpose"),
		VehiclePlate:  p.getStringPtr("vehiclePlate", "vehicle_plate"),
		VehicleType:   p.getStringPtr("vehicleType", "vehicle_type"),
		ChipSerial:    p.getStringPtr("chipSerial", "chip_serial"),
		Note:          p.getStringPtr("note"),
	}
	var err error
	if ep.CheckinTime, err = p.getTimePtr("checkinTime", "checkin_time"); err != nil {
		return ep, err
	}
	if ep.CheckoutTime, err = p.getTimePtr("checkoutTime", "checkout_time"); err != nil {
		return ep, err
	}
	return ep, nil
}
