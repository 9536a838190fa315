package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"visitor-kiosk/models"
	"visitor-kiosk/store"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrExportGenerateFail = errors.New("failed to generate spreadsheet")

const (
	exportSheet      = "Visitors"
	exportTimeLayout = "02/01/2006 15:04:05"
)

var exportHeaders = []string{
	"ID", "ชื่อ-นามสกุล", "บริษัท", "วัตถุประสงค์", "ผู้ที่มาติดต่อ",
	"เวลาเข้า", "เวลาออก", "ระยะเวลา",
}

// ExportService writes visitor rows to an .xlsx workbook.
type ExportService struct {
	store  store.VisitorStore
	loc    *time.Location
	lang   string
	now    func() time.Time
	logger *zap.Logger
}

func NewExportService(st store.VisitorStore, loc *time.Location, logger *zap.Logger) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{store: st, loc: loc, lang: LangTH, now: time.Now, logger: logger}
}

// WithLang switches the purpose column language.
func (s *ExportService) WithLang(lang string) *ExportService {
	s.lang = lang
	return s
}

// Export queries every row matching f (no page limit) and returns the
// workbook plus a suggested file name.
func (s *ExportService) Export(ctx context.Context, f store.Filter) (*bytes.Buffer, string, error) {
	rows, err := s.store.Query(ctx, f, 0)
	if err != nil {
		s.logger.Error("export query failed", zap.Error(err))
		return nil, "", err
	}
	return s.Write(rows)
}

// Write renders rows in the order given.
func (s *ExportService) Write(rows []models.Visitor) (*bytes.Buffer, string, error) {
	now := s.now().In(s.loc)

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, "", ErrExportGenerateFail
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	widths := []float64{8, 28, 24, 26, 22, 20, 20, 12}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(exportSheet, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	for i, h := range exportHeaders {
		f.SetCellValue(exportSheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(exportSheet, "A1", cell(colName(len(exportHeaders)-1), 1), headerStyle)

	row := 2
	for i := range rows {
		v := &rows[i]
		p := NormalizePurpose(v.Purpose, v.OtherPurpose)
		checkout := "-"
		if v.CheckoutTime != nil {
			checkout = v.CheckoutTime.In(s.loc).Format(exportTimeLayout)
		}
		values := []interface{}{
			v.ID,
			v.FullName,
			dash(v.Company),
			TranslatePurpose(p.Tag, p.Other, s.lang),
			dash(v.ContactPerson),
			v.CheckinTime.In(s.loc).Format(exportTimeLayout),
			checkout,
			FormatDuration(v.Duration(now)),
		}
		for c, val := range values {
			f.SetCellValue(exportSheet, cell(colName(c), row), val)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("write xlsx failed", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("Visitor_Report_%s.xlsx", now.Format("2006-01-02"))
	return buf, filename, nil
}

// FormatDuration renders h:mm.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%d:%02d", h, m)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
