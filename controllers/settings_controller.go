package controllers

import (
	"net/http"

	"visitor-kiosk/services"
	"visitor-kiosk/utils"

	"github.com/gin-gonic/gin"
)

type SettingsController struct {
	Settings *services.SettingsService
}

func NewSettingsController(s *services.SettingsService) *SettingsController {
	return &SettingsController{Settings: s}
}

type formSettingsPayload struct {
	OrgName  string          `json:"org_name"`
	SiteName string          `json:"site_name"`
	Fields   map[string]bool `json:"fields"`
	Required map[string]bool `json:"required"`
}

type toggleFieldPayload struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// GET /api/settings/form
func (sc *SettingsController) GetForm(c *gin.Context) {
	cfg, err := sc.Settings.Snapshot(c.Request.Context())
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"form": cfg, "order": services.FieldKeys})
}

// PUT /api/settings/form
func (sc *SettingsController) UpdateForm(c *gin.Context) {
	var in formSettingsPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := sc.Settings.Update(c.Request.Context(), services.FormConfig{
		OrgName:  in.OrgName,
		SiteName: in.SiteName,
		Fields:   in.Fields,
		Required: in.Required,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"form": cfg})
}

// PUT /api/settings/form/fields/:key
func (sc *SettingsController) ToggleField(c *gin.Context) {
	var in toggleFieldPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := sc.Settings.Toggle(c.Request.Context(), c.Param("key"), *in.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"form": cfg})
}
