package services

import (
	"context"
	"strings"
	"unicode"

	"visitor-kiosk/models"
	"visitor-kiosk/store"

	"go.uber.org/zap"
)

// ภาษาที่ใช้แสดงผลวัตถุประสงค์
const (
	LangTH = "th"
	LangEN = "en"
)

var purposeLabels = map[string]map[models.PurposeTag]string{
	LangTH: {
		models.PurposeMeeting:       "ประชุมงาน",
		models.PurposeDelivery:      "ส่งของ / รับของ",
		models.PurposeMaintenance:   "ซ่อมบำรุง / ติดตั้ง",
		models.PurposeInterview:     "สมัครงาน / สัมภาษณ์",
		models.PurposeVisit:         "เข้าเยี่ยมชมบริษัท",
		models.PurposeCustomer:      "ลูกค้า",
		models.PurposeService:       "เข้าซ่อม / บริการ",
		models.PurposeITSupport:     "แก้ไขปัญหา IT",
		models.PurposeSystemInstall: "ติดตั้งระบบ / โปรแกรม",
		models.PurposeTraining:      "อบรม / สอนงาน",
		models.PurposeAudit:         "ตรวจสอบ / Audit",
		models.PurposeInspection:    "ตรวจงาน / ตรวจรับ",
		models.PurposeSales:         "นำเสนอขาย / เสนอราคา",
		models.PurposePurchase:      "ติดต่อจัดซื้อ",
		models.PurposeHR:            "ติดต่อฝ่ายบุคคล",
		models.PurposeManagement:    "ติดต่อผู้บริหาร",
		models.PurposeEmergency:     "กรณีฉุกเฉิน",
		models.PurposeOther:         "อื่น ๆ",
	},
	LangEN: {
		models.PurposeMeeting:       "Meeting",
		models.PurposeDelivery:      "Delivery / Pickup",
		models.PurposeMaintenance:   "Maintenance / Installation",
		models.PurposeInterview:     "Job interview",
		models.PurposeVisit:         "Company visit",
		models.PurposeCustomer:      "Customer",
		models.PurposeService:       "Repair / Service",
		models.PurposeITSupport:     "IT support",
		models.PurposeSystemInstall: "System / software install",
		models.PurposeTraining:      "Training",
		models.PurposeAudit:         "Audit",
		models.PurposeInspection:    "Inspection / Acceptance",
		models.PurposeSales:         "Sales / Quotation",
		models.PurposePurchase:      "Purchasing",
		models.PurposeHR:            "Human resources",
		models.PurposeManagement:    "Management",
		models.PurposeEmergency:     "Emergency",
		models.PurposeOther:         "Other",
	},
}

// legacy literals the older kiosk builds wrote straight into the purpose column
var legacyPurposes = map[string]models.PurposeTag{
	"ประชุม":             models.PurposeMeeting,
	"ส่งของ":             models.PurposeDelivery,
	"ส่งสินค้า/รับสินค้า": models.PurposeDelivery,
	"ซ่อมบำรุง":          models.PurposeMaintenance,
	"เข้าซ่อม/บริการ":    models.PurposeService,
	"เยี่ยมชม":           models.PurposeVisit,
	"สัมภาษณ์งาน":        models.PurposeInterview,
	"อบรม/สอนงาน":        models.PurposeTraining,
	"ตรวจสอบ/audit":      models.PurposeAudit,
}

var purposeLookup = buildPurposeLookup()

func buildPurposeLookup() map[string]models.PurposeTag {
	m := make(map[string]models.PurposeTag)
	for _, labels := range purposeLabels {
		for tag, label := range labels {
			m[purposeKey(label)] = tag
		}
	}
	for _, tag := range models.PurposeTags {
		m[purposeKey(string(tag))] = tag
	}
	for lit, tag := range legacyPurposes {
		m[purposeKey(lit)] = tag
	}
	return m
}

// purposeKey folds case and drops whitespace so "อื่น ๆ" and "อื่นๆ" match.
func purposeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TranslatePurpose renders a purpose for display. Unknown languages fall
// back to Thai, unknown tags are returned as-is.
func TranslatePurpose(tag models.PurposeTag, other, lang string) string {
	labels, ok := purposeLabels[lang]
	if !ok {
		labels = purposeLabels[LangTH]
	}
	if tag == models.PurposeOther {
		if o := strings.TrimSpace(other); o != "" {
			return labels[models.PurposeOther] + ": " + o
		}
	}
	if label, ok := labels[tag]; ok {
		return label
	}
	return string(tag)
}

// NormalizePurpose maps whatever the purpose column holds (tag key, English
// or Thai label, "อื่น ๆ: xyz") onto the tagged value. Unrecognised text
// becomes other with the text kept.
func NormalizePurpose(raw, other string) models.Purpose {
	raw = strings.TrimSpace(raw)
	other = strings.TrimSpace(other)
	if raw == "" {
		return models.Purpose{}
	}
	if tag, ok := purposeLookup[purposeKey(raw)]; ok {
		if tag == models.PurposeOther {
			return models.Purpose{Tag: tag, Other: other}
		}
		return models.Purpose{Tag: tag}
	}

	if idx := strings.IndexAny(raw, ":："); idx > 0 {
		head := raw[:idx]
		if tag, ok := purposeLookup[purposeKey(head)]; ok && tag == models.PurposeOther {
			text := strings.TrimSpace(strings.TrimLeft(raw[idx:], ":："))
			if text == "" {
				text = other
			}
			return models.Purpose{Tag: models.PurposeOther, Other: text}
		}
	}

	if other != "" {
		return models.Purpose{Tag: models.PurposeOther, Other: raw + " " + other}
	}
	return models.Purpose{Tag: models.PurposeOther, Other: raw}
}

func knownPurposeKeys() []string {
	keys := make([]string, 0, len(models.PurposeTags))
	for _, t := range models.PurposeTags {
		keys = append(keys, string(t))
	}
	return keys
}

// NormalizeLegacyPurposes rewrites rows whose purpose column does not hold a
// tag key. It returns how many rows were rewritten.
func NormalizeLegacyPurposes(ctx context.Context, st store.VisitorStore, batch int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 200
	}

	known := knownPurposeKeys()
	var afterID int64
	total := 0
	for {
		rows, err := st.ListLegacyPurposes(ctx, known, afterID, batch)
		if err != nil {
			return total, err
		}
		for _, row := range rows {
			p := NormalizePurpose(row.Purpose, row.OtherPurpose)
			err := st.Update(ctx, row.ID, store.Patch{
				"purpose":       string(p.Tag),
				"other_purpose": p.Other,
			})
			if err != nil {
				return total, err
			}
			logger.Debug("purpose normalized",
				zap.Int64("id", row.ID),
				zap.String("from", row.Purpose),
				zap.String("to", string(p.Tag)))
			total++
			afterID = row.ID
		}
		if len(rows) < batch {
			break
		}
	}
	logger.Info("legacy purposes normalized", zap.Int("rows", total))
	return total, nil
}
