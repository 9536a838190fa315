package controllers

import (
	"errors"
	"net/http"
	"strings"

	"visitor-kiosk/services"
	"visitor-kiosk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthController struct {
	Operators *services.OperatorService
	Logger    *zap.Logger
}

func NewAuthController(ops *services.OperatorService, logger *zap.Logger) *AuthController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthController{Operators: ops, Logger: logger}
}

// Login lets the dashboard check a username / password pair before it
// starts sending them as basic auth.
func (ac *AuthController) Login(c *gin.Context) {
	var in loginPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid payload")
		return
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		utils.JSONError(c, http.StatusBadRequest, "username and password required")
		return
	}

	op, err := ac.Operators.Authenticate(c.Request.Context(), username, in.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		ac.Logger.Info("operator login rejected", zap.String("username", username))
		utils.JSONError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		ac.Logger.Error("operator login failed", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.JSONSuccess(c, http.StatusOK, gin.H{
		"operator": gin.H{
			"id":        op.ID,
			"full_name": op.FullName,
			"username":  op.Username,
		},
	})
}
