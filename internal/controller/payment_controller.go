package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type PaymentController struct {
	BillingService *service.BillingService
	Log            *zap.Logger
}

// LiqPayCheckout creates a pending payment and returns the signed form the browser posts to LiqPay.
func (c *PaymentController) LiqPayCheckout(w http.ResponseWriter, r *http.Request) {
	var body service.CheckoutInput
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	out, err := c.BillingService.CreateLiqPayCheckout(r.Context(), middleware.UserID(r.Context()), body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
