package controllers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"visitor-kiosk/credential"
	"visitor-kiosk/models"
	"visitor-kiosk/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// slip is an 80mm receipt; the page prints itself once loaded.
var slipTemplate = template.Must(template.New("slip").Parse(`<!doctype html>
<html lang="th">
<head>
<meta charset="utf-8">
<title>Visitor {{.Number}}</title>
<style>
body { margin: 0; font-family: Arial, sans-serif; color: #111827; }
.receipt { width: 360px; padding: 16px; }
.line { border-top: 1px dashed #000; margin: 8px 0; }
.row { font-size: 12px; margin-bottom: 4px; }
.center { display: flex; justify-content: center; margin: 8px 0; }
.sign { width: 100px; height: 50px; border: 1px solid #000; border-radius: 4px; margin: 0 auto 4px; }
.note { font-size: 11px; text-align: center; }
</style>
</head>
<body onload="setTimeout(function () { window.print() }, 400)">
<div class="receipt">
  <h1 style="font-size:20px;margin:0">{{.OrgName}}</h1>
  <div style="font-size:14px;margin-bottom:8px">{{.SiteName}}</div>
  <div class="line"></div>
  <div class="row"><b>ID:</b> {{.Number}}</div>
  <div class="row"><b>ผู้ติดต่อ:</b> {{.V.FullName}}</div>
  {{with .V.Gender}}<div class="row"><b>เพศ:</b> {{.}}</div>{{end}}
  {{with .V.ContactPerson}}<div class="row"><b>ติดต่อ:</b> {{.}}</div>{{end}}
  {{with .V.Company}}<div class="row"><b>จากบริษัท:</b> {{.}}</div>{{end}}
  {{with .V.VehiclePlate}}<div class="row"><b>ทะเบียนรถ:</b> {{.}}</div>{{end}}
  {{with .Purpose}}<div class="row"><b>ประสงค์:</b> {{.}}</div>{{end}}
  <div class="row"><b>เวลาเข้า:</b> {{.Checkin}}</div>
  <div class="row"><b>เวลาออก:</b> ................................</div>
  <div class="line"></div>
  {{with .QR}}<div class="center"><img src="{{.}}" alt="qr" width="120" height="120"></div>{{end}}
  {{with .Photo}}<div class="center"><img src="{{.}}" alt="photo" style="width:140px;height:90px;object-fit:cover;border:1px solid #ddd"></div>{{end}}
  <div class="sign"></div>
  <div class="note">(ลงชื่อผู้ได้รับการติดต่อ)</div>
  <div class="note">(ตั๋วนี้จะต้องนำไปให้เจ้าหน้าที่ เมื่อเสร็จธุระ) โปรดปฏิบัติตามนโยบายความปลอดภัยของหน่วยงาน</div>
</div>
</body>
</html>`))

type slipView struct {
	OrgName  string
	SiteName string
	Number   string
	Purpose  string
	Checkin  string
	QR       template.URL
	Photo    string
	V        *models.Visitor
}

type PrintController struct {
	Visitors *services.VisitorService
	Settings services.FormSource
	Loc      *time.Location
	Lang     string
	Logger   *zap.Logger
}

func NewPrintController(vs *services.VisitorService, settings services.FormSource, loc *time.Location, lang string, logger *zap.Logger) *PrintController {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintController{Visitors: vs, Settings: settings, Loc: loc, Lang: lang, Logger: logger}
}

// GET /print/:id
// The record is always re-read and a provisional credential is replaced
// by the final one before rendering.
func (pc *PrintController) Slip(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	v, err := pc.Visitors.Printable(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	form, err := pc.Settings.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	view := slipView{
		OrgName:  form.OrgName,
		SiteName: form.SiteName,
		Number:   fmt.Sprintf("%010d", v.ID),
		Checkin:  v.CheckinTime.In(pc.Loc).Format("02/01/2006 15:04:05"),
		V:        v,
	}
	if v.Purpose != "" {
		pv := v.PurposeValue()
		view.Purpose = services.TranslatePurpose(pv.Tag, pv.Other, pc.Lang)
	}
	if v.PhotoURL != nil {
		view.Photo = *v.PhotoURL
	}
	png, err := credential.EncodeText(v.Credential, credential.DefaultSize)
	if err != nil {
		pc.Logger.Warn("slip qr render failed", zap.Int64("id", id), zap.Error(err))
	} else {
		view.QR = template.URL(credential.DataURL(png))
	}

	var buf bytes.Buffer
	if err := slipTemplate.Execute(&buf, view); err != nil {
		pc.Logger.Error("slip render failed", zap.Int64("id", id), zap.Error(err))
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
