package models

import "strings"

// PurposeTag is the canonical on-disk key for a visit purpose.
type PurposeTag string

const (
	PurposeMeeting       PurposeTag = "meeting"
	PurposeDelivery      PurposeTag = "delivery"
	PurposeMaintenance   PurposeTag = "maintenance"
	PurposeInterview     PurposeTag = "interview"
	PurposeVisit         PurposeTag = "visit"
	PurposeCustomer      PurposeTag = "customer"
	PurposeService       PurposeTag = "service"
	PurposeITSupport     PurposeTag = "it_support"
	PurposeSystemInstall PurposeTag = "system_install"
	PurposeTraining      PurposeTag = "training"
	PurposeAudit         PurposeTag = "audit"
	PurposeInspection    PurposeTag = "inspection"
	PurposeSales         PurposeTag = "sales"
	PurposePurchase      PurposeTag = "purchase"
	PurposeHR            PurposeTag = "hr"
	PurposeManagement    PurposeTag = "management"
	PurposeEmergency     PurposeTag = "emergency"
	PurposeOther         PurposeTag = "other"
)

// PurposeTags lists every known tag in menu order.
var PurposeTags = []PurposeTag{
	PurposeMeeting, PurposeDelivery, PurposeMaintenance, PurposeInterview,
	PurposeVisit, PurposeCustomer, PurposeService, PurposeITSupport,
	PurposeSystemInstall, PurposeTraining, PurposeAudit, PurposeInspection,
	PurposeSales, PurposePurchase, PurposeHR, PurposeManagement,
	PurposeEmergency, PurposeOther,
}

// Valid reports whether t is one of the known tags.
func (t PurposeTag) Valid() bool {
	for _, k := range PurposeTags {
		if k == t {
			return true
		}
	}
	return false
}

// Purpose is a tagged value: a fixed tag, or free text when Tag is other.
type Purpose struct {
	Tag   PurposeTag `json:"tag"`
	Other string     `json:"other,omitempty"`
}

func (p Purpose) IsOther() bool { return p.Tag == PurposeOther }

// Empty reports a purpose with no tag selected.
func (p Purpose) Empty() bool { return strings.TrimSpace(string(p.Tag)) == "" }
