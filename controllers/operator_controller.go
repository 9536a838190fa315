package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"visitor-kiosk/services"
	"visitor-kiosk/utils"

	"github.com/gin-gonic/gin"
)

type createOperatorPayload struct {
	FullName string `json:"full_name"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type OperatorController struct {
	Operators *services.OperatorService
}

func NewOperatorController(ops *services.OperatorService) *OperatorController {
	return &OperatorController{Operators: ops}
}

// GET /api/operators
func (oc *OperatorController) List(c *gin.Context) {
	ops, err := oc.Operators.List(c.Request.Context())
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONSuccess(c, http.StatusOK, ops)
}

// POST /api/operators
func (oc *OperatorController) Create(c *gin.Context) {
	var in createOperatorPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	op, err := oc.Operators.Create(c.Request.Context(), in.FullName, in.Username, in.Password)
	switch {
	case errors.Is(err, services.ErrOperatorExists):
		utils.JSONError(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.JSONError(c, http.StatusBadRequest, "username and password required")
	case err != nil:
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
	default:
		utils.JSONSuccess(c, http.StatusCreated, op)
	}
}

// DELETE /api/operators/:id
func (oc *OperatorController) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.JSONError(c, http.StatusBadRequest, "invalid operator id")
		return
	}
	err = oc.Operators.Delete(c.Request.Context(), uint(id))
	switch {
	case errors.Is(err, services.ErrOperatorNotFound):
		utils.JSONError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrLastOperator):
		utils.JSONError(c, http.StatusConflict, err.Error())
	case err != nil:
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
	default:
		utils.JSONSuccess(c, http.StatusOK, gin.H{"deleted": id})
	}
}
