package models

import (
	"strings"
	"time"
)

// IDType ประเภทบัตรที่ใช้แสดงตัว
type IDType string

const (
	IDTypeCitizen       IDType = "citizen"
	IDTypeDriverLicense IDType = "driver_license"
	IDTypeOther         IDType = "other"
)

// ParseIDType accepts the canonical values plus the legacy "driver" value
// the old kiosk form used to post.
func ParseIDType(s string) (IDType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "citizen", "id_card", "":
		return IDTypeCitizen, true
	case "driver_license", "driver":
		return IDTypeDriverLicense, true
	case "other":
		return IDTypeOther, true
	}
	return "", false
}

// Visitor is one row per physical visit.
type Visitor struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	IDType   IDType `gorm:"column:id_type;size:32" json:"id_type"`
	IDNumber string `gorm:"column:id_number;size:64;index" json:"id_number"`
	FullName string `gorm:"column:full_name;size:255;index" json:"full_name"`
	Gender   string `gorm:"column:gender;size:32" json:"gender,omitempty"`

	Company       string `gorm:"column:company;size:255" json:"company,omitempty"`
	Phone         string `gorm:"column:phone;size:32" json:"phone,omitempty"`
	ContactPerson string `gorm:"column:contact_person;size:255" json:"contact_person"`
	VehiclePlate  string `gorm:"column:vehicle_plate;size:64" json:"vehicle_plate,omitempty"`
	VehicleType   string `gorm:"column:vehicle_type;size:64" json:"vehicle_type,omitempty"`
	ChipSerial    string `gorm:"column:chip_serial;size:64" json:"chip_serial,omitempty"`

	Purpose      string `gorm:"column:purpose;size:64" json:"purpose"`
	OtherPurpose string `gorm:"column:other_purpose;size:255" json:"other_purpose,omitempty"`
	Note         string `gorm:"column:note;type:text" json:"note,omitempty"`

	PhotoURL   *string `gorm:"column:photo_url;size:512" json:"photo_url"`
	Credential string  `gorm:"column:credential;type:text" json:"credential"`

	CheckinTime  time.Time  `gorm:"column:checkin_time;not null;index" json:"checkin_time"`
	CheckoutTime *time.Time `gorm:"column:checkout_time;index" json:"checkout_time"`
}

func (Visitor) TableName() string { return "visitors" }

// OnSite reports whether the visitor has not checked out yet.
func (v *Visitor) OnSite() bool {
	return v.CheckoutTime == nil
}

// Duration is the time spent on site, up to now when still checked in.
func (v *Visitor) Duration(now time.Time) time.Duration {
	end := now
	if v.CheckoutTime != nil {
		end = *v.CheckoutTime
	}
	d := end.Sub(v.CheckinTime)
	if d < 0 {
		return -d
	}
	return d
}

// PurposeValue returns the tagged purpose of the row.
func (v *Visitor) PurposeValue() Purpose {
	return Purpose{Tag: PurposeTag(v.Purpose), Other: v.OtherPurpose}
}
