package models

import (
	"time"

	"gorm.io/datatypes"
)

// KioskSetting holds the operator-editable form configuration. There is a
// single row.
type KioskSetting struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	OrgName  string         `gorm:"size:255" json:"org_name"`
	SiteName string         `gorm:"size:255" json:"site_name"`
	Fields   datatypes.JSON `gorm:"column:fields" json:"fields"`
	Required datatypes.JSON `gorm:"column:required" json:"required"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
