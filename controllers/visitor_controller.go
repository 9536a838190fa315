package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visitor-kiosk/credential"
	"visitor-kiosk/roster"
	"visitor-kiosk/services"
	"visitor-kiosk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPhotoBytes = 8 << 20

type VisitorController struct {
	Visitors *services.VisitorService
	Exports  *services.ExportService
	Roster   roster.Querier
	Loc      *time.Location
	PageSize int
	Logger   *zap.Logger

	now func() time.Time
}

func NewVisitorController(vs *services.VisitorService, ex *services.ExportService, q roster.Querier, loc *time.Location, pageSize int, logger *zap.Logger) *VisitorController {
	if loc == nil {
		loc = time.UTC
	}
	if pageSize <= 0 {
		pageSize = roster.DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitorController{
		Visitors: vs,
		Exports:  ex,
		Roster:   q,
		Loc:      loc,
		PageSize: pageSize,
		Logger:   logger,
		now:      time.Now,
	}
}

// respondError maps service errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		first, _ := verr.Fields.First()
		utils.JSONFieldErrors(c, http.StatusUnprocessableEntity, verr.Error(), verr.Fields.Map(), first)
	case errors.Is(err, services.ErrVisitorNotFound):
		utils.JSONError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrSubmitInFlight):
		utils.JSONError(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidTimeRange),
		errors.Is(err, services.ErrNoIDs),
		errors.Is(err, services.ErrNoPhoto),
		errors.Is(err, services.ErrUnknownField),
		errors.Is(err, roster.ErrUnknownPreset),
		errors.Is(err, credential.ErrInvalidPayload),
		errors.Is(err, credential.ErrUnreadable):
		utils.JSONError(c, http.StatusBadRequest, err.Error())
	default:
		// persist failures carry the store message verbatim
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.JSONError(c, http.StatusBadRequest, "invalid visitor id")
		return 0, false
	}
	return id, true
}

func bindPayload(c *gin.Context) (payload, bool) {
	var p payload
	if err := c.ShouldBindJSON(&p); err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return p, true
}

// POST /api/visitors
func (vc *VisitorController) Submit(c *gin.Context) {
	p, ok := bindPayload(c)
	if !ok {
		return
	}
	d := p.draft()
	if raw := p.getString("photo", "photoData", "photo_base64"); raw != "" {
		data, mime, err := utils.DecodeImage(raw)
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, err.Error())
			return
		}
		d.Photo, d.PhotoType = data, mime
	}

	v, err := vc.Visitors.Submit(c.Request.Context(), &d)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, v)
}

// POST /api/visitors/validate
func (vc *VisitorController) Validate(c *gin.Context) {
	p, ok := bindPayload(c)
	if !ok {
		return
	}
	d := p.draft()
	fieldErrs, err := vc.Visitors.Validate(c.Request.Context(), &d)
	if err != nil {
		respondError(c, err)
		return
	}
	out := gin.H{"valid": len(fieldErrs) == 0, "fields": fieldErrs.Map()}
	if first, ok := fieldErrs.First(); ok {
		out["first"] = first
	}
	utils.JSONSuccess(c, http.StatusOK, out)
}

// GET /api/visitors/suggestions?name=
func (vc *VisitorController) Suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	utils.JSONSuccess(c, http.StatusOK, vc.Visitors.Suggest(c.Query("name"), limit))
}

// rosterFilter reads filter/from/to/name/limit from the query string. Dates
// are calendar days in the kiosk timezone.
func (vc *VisitorController) rosterFilter(c *gin.Context) (roster.Filter, error) {
	preset, err := roster.ParsePreset(c.Query("filter"))
	if err != nil {
		return roster.Filter{}, err
	}
	f := roster.Filter{Preset: preset, Name: strings.TrimSpace(c.Query("name"))}
	if f.From, err = vc.parseDate(c.Query("from")); err != nil {
		return f, err
	}
	if f.To, err = vc.parseDate(c.Query("to")); err != nil {
		return f, err
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}

func (vc *VisitorController) parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, vc.Loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return &t, nil
}

// GET /api/visitors
func (vc *VisitorController) List(c *gin.Context) {
	f, err := vc.rosterFilter(c)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := roster.Load(c.Request.Context(), vc.Roster, f, vc.now(), vc.Loc, vc.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, rows)
}

// GET /api/visitors/summary
func (vc *VisitorController) Summary(c *gin.Context) {
	f, err := vc.rosterFilter(c)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := roster.Summarize(c.Request.Context(), vc.Roster, f, vc.now(), vc.Loc)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, sum)
}

// GET /api/visitors/:id
func (vc *VisitorController) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	v, err := vc.Visitors.Lookup(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, v)
}

// POST /api/visitors/:id/checkout
func (vc *VisitorController) Checkout(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	v, err := vc.Visitors.Checkout(c.Request.Context(), id)
	already := errors.Is(err, services.ErrAlreadyCheckedOut)
	if err != nil && !already {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"visitor": v, "alreadyCheckedOut": already})
}

// PATCH /api/visitors/:id
func (vc *VisitorController) Edit(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	p, ok := bindPayload(c)
	if !ok {
		return
	}
	patch, err := p.editPatch()
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	v, err := vc.Visitors.Edit(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, v)
}

// DELETE /api/visitors  {"ids":[..]}
func (vc *VisitorController) Delete(c *gin.Context) {
	p, ok := bindPayload(c)
	if !ok {
		return
	}
	n, err := vc.Visitors.Remove(c.Request.Context(), p.getInt64s("ids"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"deleted": n})
}

// readImage accepts a multipart file under field, or a JSON body carrying a
// base64 / data URL string under the same name.
func readImage(c *gin.Context, field string) ([]byte, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile(field)
		if err != nil {
			return nil, "", fmt.Errorf("missing %s file", field)
		}
		if fh.Size > maxPhotoBytes {
			return nil, "", fmt.Errorf("%s too large", field)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
		if err != nil {
			return nil, "", err
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		return data, ct, nil
	}

	var p payload
	if err := c.ShouldBindJSON(&p); err != nil {
		return nil, "", err
	}
	return utils.DecodeImage(p.getString(field))
}

// POST /api/visitors/:id/photo
func (vc *VisitorController) RetryPhoto(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	data, ct, err := readImage(c, "photo")
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	v, err := vc.Visitors.RetryPhoto(c.Request.Context(), id, data, ct)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, v)
}

// POST /api/visitors/:id/credential
func (vc *VisitorController) RegenerateCredential(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	v, err := vc.Visitors.RegenerateCredential(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, v)
}

// GET /api/visitors/:id/credential.png
func (vc *VisitorController) CredentialPNG(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	v, err := vc.Visitors.Printable(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(credential.DefaultSize)))
	if size < 64 || size > 1024 {
		size = credential.DefaultSize
	}
	png, err := credential.EncodeText(v.Credential, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", png)
}

// POST /api/visitors/scan
// Reads a photographed slip, resolves the visitor and optionally checks
// them out (?checkout=1).
func (vc *VisitorController) Scan(c *gin.Context) {
	data, _, err := readImage(c, "image")
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	pl, err := credential.Decode(data)
	if err != nil {
		respondError(c, err)
		return
	}
	if !pl.IsFinal() {
		utils.JSONError(c, http.StatusUnprocessableEntity, "credential has no visitor id")
		return
	}

	ctx := c.Request.Context()
	checkout, _ := strconv.ParseBool(c.DefaultQuery("checkout", "false"))
	if !checkout {
		v, err := vc.Visitors.Lookup(ctx, *pl.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.JSONSuccess(c, http.StatusOK, gin.H{"credential": pl, "visitor": v})
		return
	}

	v, err := vc.Visitors.Checkout(ctx, *pl.ID)
	already := errors.Is(err, services.ErrAlreadyCheckedOut)
	if err != nil && !already {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"credential": pl, "visitor": v, "alreadyCheckedOut": already})
}

// GET /api/visitors/export.xlsx
func (vc *VisitorController) Export(c *gin.Context) {
	f, err := vc.rosterFilter(c)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	buf, name, err := vc.Exports.Export(c.Request.Context(), f.StoreFilter(vc.now(), vc.Loc))
	if err != nil {
		vc.Logger.Error("export failed", zap.Error(err))
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
