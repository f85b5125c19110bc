package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/liqpay"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/validation"
)

const (
	billingPeriod  = 30 * 24 * time.Hour
	liqpayCurrency = "UAH"
)

// BillingService maps Stripe and LiqPay notifications onto user plans. Webhooks are
// delivered at least once; each applied event is recorded so replays are acknowledged
// without being applied twice.
type BillingService struct {
	UserRepo    repository.UserRepositoryInterface
	PaymentRepo repository.PaymentRepositoryInterface
	WebhookRepo repository.WebhookEventRepositoryInterface
	Config      *config.Config
	LiqPay      *liqpay.Client
	Log         *zap.Logger
	Now         func() time.Time
}

// WebhookResult tells the caller whether the event changed anything.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (s *BillingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// dedupe records the event and runs apply once. A failed apply forgets the event so the
// provider's retry gets another chance.
func (s *BillingService) dedupe(ctx context.Context, provider, eventID, eventType string, apply func() error) (bool, error) {
	first, err := s.WebhookRepo.MarkProcessed(ctx, provider, eventID, eventType)
	if err != nil {
		metrics.IncrementWebhooks(provider, "error")
		return false, err
	}
	if !first {
		s.Log.Info("duplicate webhook ignored", zap.String("provider", provider), zap.String("event_id", eventID))
		metrics.IncrementWebhooks(provider, "duplicate")
		return false, nil
	}

	if err := apply(); err != nil {
		if uerr := s.WebhookRepo.Unmark(context.WithoutCancel(ctx), provider, eventID); uerr != nil {
			s.Log.Error("failed to unmark webhook event", zap.String("provider", provider), zap.String("event_id", eventID), zap.Error(uerr))
		}
		metrics.IncrementWebhooks(provider, "error")
		return true, err
	}
	metrics.IncrementWebhooks(provider, "applied")
	return true, nil
}

// missing turns a NotFound into a logged no-op, as providers should not retry those.
func (s *BillingService) missing(err error, msg string, fields ...zap.Field) error {
	if appErrors.IsNotFound(err) {
		s.Log.Warn(msg, append(fields, zap.Error(err))...)
		return nil
	}
	return err
}

// HandleStripeWebhook verifies the Stripe-Signature header and applies the event.
func (s *BillingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.Config.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.Log.Warn("invalid stripe webhook", zap.Error(err))
		metrics.IncrementWebhooks(model.ProviderStripe, "rejected")
		return nil, appErrors.NewBadRequest("invalid signature")
	}

	log := s.Log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	log.Info("stripe webhook received")

	first, err := s.dedupe(ctx, model.ProviderStripe, event.ID, event.Type, func() error {
		return s.applyStripeEvent(ctx, log, &event)
	})
	if err != nil {
		log.Error("error processing stripe webhook", zap.Error(err))
		return nil, err
	}
	return &WebhookResult{EventID: event.ID, Type: event.Type, Duplicate: !first}, nil
}

func (s *BillingService) applyStripeEvent(ctx context.Context, log *zap.Logger, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return appErrors.NewBadRequest("invalid checkout session payload")
		}
		userID, err := strconv.Atoi(session.Metadata["user_id"])
		if err != nil {
			log.Warn("checkout session without user_id metadata")
			return nil
		}
		plan, ok := model.ParsePlan(session.Metadata["plan"])
		if !ok {
			log.Warn("checkout session with unknown plan", zap.String("plan", session.Metadata["plan"]))
			return nil
		}
		var customerID, subscriptionID string
		if session.Customer != nil {
			customerID = session.Customer.ID
		}
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		err = s.UserRepo.SetStripeSubscription(ctx, userID, plan, customerID, subscriptionID)
		if err == nil {
			log.Info("updated subscription", zap.Int("user_id", userID), zap.String("plan", string(plan)))
		}
		return s.missing(err, "checkout for unknown user", zap.Int("user_id", userID))

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return appErrors.NewBadRequest("invalid subscription payload")
		}
		user, err := s.UserRepo.GetByStripeSubscription(ctx, sub.ID)
		if err != nil {
			return s.missing(err, "subscription update for unknown user", zap.String("subscription_id", sub.ID))
		}
		if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
			log.Warn("subscription without price", zap.String("subscription_id", sub.ID))
			return nil
		}
		priceID := sub.Items.Data[0].Price.ID
		plan, ok := s.Config.PlanForPrice(priceID)
		if !ok {
			log.Warn("subscription price not mapped to a plan", zap.String("price_id", priceID))
			return nil
		}
		if err := s.UserRepo.UpdatePlan(ctx, user.ID, plan); err != nil {
			return err
		}
		log.Info("updated plan", zap.Int("user_id", user.ID), zap.String("plan", string(plan)))
		return nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return appErrors.NewBadRequest("invalid subscription payload")
		}
		user, err := s.UserRepo.GetByStripeSubscription(ctx, sub.ID)
		if err != nil {
			return s.missing(err, "subscription deletion for unknown user", zap.String("subscription_id", sub.ID))
		}
		if err := s.UserRepo.SetStripeSubscription(ctx, user.ID, model.PlanFree, "", ""); err != nil {
			return err
		}
		log.Info("cancelled subscription", zap.Int("user_id", user.ID))
		return nil

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return appErrors.NewBadRequest("invalid invoice payload")
		}
		customerID := ""
		if inv.Customer != nil {
			customerID = inv.Customer.ID
		}
		log.Warn("invoice payment failed", zap.String("customer_id", customerID), zap.String("invoice_id", inv.ID))
		return nil

	default:
		log.Debug("unhandled stripe event type")
		return nil
	}
}

type CheckoutInput struct {
	Plan        string            `json:"plan" validate:"required"`
	PaymentType model.PaymentType `json:"payment_type" validate:"omitempty,oneof=subscription onetime"`
	Months      int               `json:"months" validate:"omitempty,gte=1,lte=12"`
}

type CheckoutResult struct {
	OrderID     string  `json:"order_id"`
	Data        string  `json:"data"`
	Signature   string  `json:"signature"`
	CheckoutURL string  `json:"checkout_url"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// CreateLiqPayCheckout stores a pending payment and returns the signed checkout form.
func (s *BillingService) CreateLiqPayCheckout(ctx context.Context, userID int, in CheckoutInput) (*CheckoutResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if s.LiqPay == nil || s.LiqPay.PrivateKey == "" {
		return nil, appErrors.NewBadRequest("LiqPay payments are not configured")
	}
	plan, ok := model.ParsePlan(in.Plan)
	if !ok || plan == model.PlanFree {
		return nil, appErrors.NewBadRequest("invalid plan %q", in.Plan)
	}
	if in.PaymentType == "" {
		in.PaymentType = model.PaymentSubscription
	}
	months := 1
	if in.PaymentType == model.PaymentOneTime && in.Months > 0 {
		months = in.Months
	}
	if _, err := s.UserRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	price := s.Config.Plans.Spec(plan).PriceUAH
	title := strings.ToUpper(string(plan[:1])) + string(plan[1:])
	suffix := uuid.NewString()[:8]

	p := &model.Payment{
		UserID:      userID,
		Plan:        plan,
		PaymentType: in.PaymentType,
		Months:      months,
		Currency:    liqpayCurrency,
		Status:      "pending",
	}
	params := map[string]any{
		"currency":         liqpayCurrency,
		"customer":         strconv.Itoa(userID),
		"customer_user_id": strconv.Itoa(userID),
		"server_url":       s.Config.APIURL + "/api/v1/webhooks/liqpay",
	}
	if in.PaymentType == model.PaymentSubscription {
		p.OrderID = fmt.Sprintf("sub_%d_%s_%s", userID, plan, suffix)
		p.Amount = price
		params["action"] = "subscribe"
		params["subscribe_periodicity"] = "month"
		params["subscribe_date_start"] = s.now().Format("2006-01-02 15:04:05")
		params["description"] = fmt.Sprintf("Subscription %q - MailLeopard", title)
	} else {
		p.OrderID = fmt.Sprintf("pay_%d_%s_%s", userID, plan, suffix)
		p.Amount = price * float64(months)
		params["action"] = "pay"
		params["description"] = fmt.Sprintf("Payment for %d mo. of the %q plan", months, title)
	}
	params["amount"] = p.Amount
	params["order_id"] = p.OrderID
	params["result_url"] = s.Config.AppURL + "/payment/success?order_id=" + p.OrderID

	data, signature, err := s.LiqPay.Encode(params)
	if err != nil {
		return nil, err
	}
	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Log.Info("liqpay checkout created", zap.Int("user_id", userID), zap.String("order_id", p.OrderID), zap.Float64("amount", p.Amount))
	return &CheckoutResult{
		OrderID:     p.OrderID,
		Data:        data,
		Signature:   signature,
		CheckoutURL: s.LiqPay.CheckoutURL(data, signature),
		Amount:      p.Amount,
		Currency:    liqpayCurrency,
	}, nil
}

// HandleLiqPayCallback verifies and applies a server callback. The dedup key is
// order_id:status:payment_id, so each status change of an order is applied once.
func (s *BillingService) HandleLiqPayCallback(ctx context.Context, data, signature string) (*WebhookResult, error) {
	if data == "" || signature == "" {
		return nil, appErrors.NewBadRequest("missing data or signature")
	}
	if s.LiqPay == nil {
		return nil, appErrors.NewBadRequest("LiqPay payments are not configured")
	}
	cb, err := s.LiqPay.Decode(data, signature)
	if err != nil {
		s.Log.Warn("invalid liqpay callback", zap.Error(err))
		metrics.IncrementWebhooks(model.ProviderLiqPay, "rejected")
		if errors.Is(err, liqpay.ErrInvalidSignature) {
			return nil, appErrors.NewBadRequest("invalid signature")
		}
		return nil, appErrors.NewBadRequest("invalid data")
	}
	if cb.OrderID == "" {
		s.Log.Warn("liqpay callback without order_id", zap.String("status", cb.Status))
		return nil, appErrors.NewBadRequest("missing order_id")
	}

	key := fmt.Sprintf("%s:%s:%s", cb.OrderID, cb.Status, cb.PaymentID)
	log := s.Log.With(zap.String("order_id", cb.OrderID), zap.String("status", cb.Status))
	log.Info("liqpay callback received")

	first, err := s.dedupe(ctx, model.ProviderLiqPay, key, cb.Status, func() error {
		return s.applyLiqPayCallback(ctx, log, cb)
	})
	if err != nil {
		log.Error("error processing liqpay callback", zap.Error(err))
		return nil, err
	}
	return &WebhookResult{EventID: key, Type: cb.Status, Duplicate: !first}, nil
}

func (s *BillingService) applyLiqPayCallback(ctx context.Context, log *zap.Logger, cb *liqpay.Callback) error {
	p, err := s.PaymentRepo.GetByOrderID(ctx, cb.OrderID)
	if err != nil {
		return s.missing(err, "liqpay callback for unknown payment")
	}

	p.Status = cb.Status
	if id := cb.PaymentID.String(); id != "" {
		p.ProviderPaymentID = id
	}
	now := s.now()

	switch cb.Status {
	case "success":
		expires := now.Add(billingPeriod)
		if p.PaymentType == model.PaymentOneTime {
			expires = now.Add(time.Duration(max(p.Months, 1)) * billingPeriod)
		}
		p.ExpiresAt = &expires
		if err := s.UserRepo.UpdatePlan(ctx, p.UserID, p.Plan); err != nil {
			if err := s.missing(err, "liqpay payment for unknown user", zap.Int("user_id", p.UserID)); err != nil {
				return err
			}
		} else {
			log.Info("plan activated", zap.Int("user_id", p.UserID), zap.String("plan", string(p.Plan)))
		}
	case "error", "failure":
		p.ErrorDescription = cb.ErrDescription
		log.Warn("liqpay payment failed", zap.String("reason", cb.ErrDescription))
	case "reversed":
		if err := s.UserRepo.UpdatePlan(ctx, p.UserID, model.PlanFree); err != nil {
			if err := s.missing(err, "liqpay reversal for unknown user", zap.Int("user_id", p.UserID)); err != nil {
				return err
			}
		}
		log.Info("payment reversed, plan reset to free", zap.Int("user_id", p.UserID))
	case "subscribed":
		if id := cb.AcqID.String(); id != "" {
			p.SubscriptionID = id
		}
	case "unsubscribed":
		p.CancelledAt = &now
		log.Info("liqpay subscription cancelled", zap.Int("user_id", p.UserID))
	}

	return s.PaymentRepo.Update(ctx, p)
}
