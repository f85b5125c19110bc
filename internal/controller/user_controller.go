package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type UserController struct {
	UserService *service.UserService
	Log         *zap.Logger
}

func (c *UserController) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := c.UserService.Me(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
