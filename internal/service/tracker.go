package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/lock"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// EventTracker records engagement events against sent emails.
type EventTracker struct {
	EmailRepo repository.EmailRepositoryInterface
	Deduper   lock.Deduper
	Log       *zap.Logger
	Now       func() time.Time
}

// TrackInput identifies the email either by id or by provider message id.
type TrackInput struct {
	EmailID   int
	MessageID string
	Type      model.EventType
	Metadata  map[string]any
	IP        string
	UserAgent string
	At        time.Time
}

func (t *EventTracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now().UTC()
}

// Track appends the event and updates email, campaign and contact state. Unknown emails
// surface as a NotFound error.
func (t *EventTracker) Track(ctx context.Context, in TrackInput) (*model.EventOutcome, error) {
	if !in.Type.Valid() {
		return nil, appErrors.NewBadRequest("unknown event type %q", in.Type)
	}

	emailID := in.EmailID
	if emailID == 0 {
		if in.MessageID == "" {
			return nil, appErrors.NewBadRequest("email id or message id is required")
		}
		e, err := t.EmailRepo.GetByMessageID(ctx, in.MessageID)
		if err != nil {
			return nil, err
		}
		emailID = e.ID
	}

	at := in.At
	if at.IsZero() {
		at = t.now()
	}
	ev := &model.EmailEvent{
		EmailID:   emailID,
		EventType: in.Type,
		Metadata:  model.JSONMap(in.Metadata),
		IPAddress: in.IP,
		UserAgent: in.UserAgent,
		CreatedAt: at,
	}
	out, err := t.EmailRepo.RecordEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	metrics.IncrementEventsTracked(string(in.Type), out.First)
	t.Log.Debug("email event recorded",
		zap.Int("email_id", emailID),
		zap.Int("campaign_id", out.CampaignID),
		zap.String("type", string(in.Type)),
		zap.Bool("first", out.First),
	)
	return out, nil
}

// SendGridEvent is one element of the SendGrid event webhook array. Custom args set at
// send time come back as top-level string fields.
type SendGridEvent struct {
	Email       string      `json:"email"`
	Timestamp   int64       `json:"timestamp"`
	Event       string      `json:"event"`
	SGEventID   string      `json:"sg_event_id"`
	SGMessageID string      `json:"sg_message_id"`
	URL         string      `json:"url"`
	UserAgent   string      `json:"useragent"`
	IP          string      `json:"ip"`
	Reason      string      `json:"reason"`
	EmailID     json.Number `json:"email_id"`
}

var sendGridEventTypes = map[string]model.EventType{
	"open":              model.EventOpen,
	"click":             model.EventClick,
	"bounce":            model.EventBounce,
	"dropped":           model.EventBounce,
	"spamreport":        model.EventComplaint,
	"unsubscribe":       model.EventUnsubscribe,
	"group_unsubscribe": model.EventUnsubscribe,
}

type WebhookSummary struct {
	Received   int `json:"received"`
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
	NotFound   int `json:"not_found"`
}

// HandleSendGridEvents applies a batch of provider events. Redelivered events are skipped
// by sg_event_id; events for unknown emails are logged and acknowledged.
func (t *EventTracker) HandleSendGridEvents(ctx context.Context, body []byte) (*WebhookSummary, error) {
	var events []SendGridEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, appErrors.NewBadRequest("invalid event payload")
	}

	sum := &WebhookSummary{Received: len(events)}
	for _, e := range events {
		typ, ok := sendGridEventTypes[e.Event]
		if !ok {
			sum.Ignored++
			continue
		}

		in := e.trackInput(typ)
		if in.EmailID == 0 && in.MessageID == "" {
			t.Log.Warn("sendgrid event without email reference", zap.String("event", e.Event), zap.String("sg_event_id", e.SGEventID))
			sum.Ignored++
			continue
		}

		dedupKey := ""
		if e.SGEventID != "" {
			dedupKey = "sg:" + e.SGEventID
			if !t.Deduper.FirstSeen(ctx, dedupKey) {
				sum.Duplicates++
				continue
			}
		}

		if _, err := t.Track(ctx, in); err != nil {
			if appErrors.IsNotFound(err) {
				t.Log.Warn("event for unknown email", zap.String("sg_message_id", e.SGMessageID), zap.Error(err))
				sum.NotFound++
				continue
			}
			if dedupKey != "" {
				t.Deduper.Forget(ctx, dedupKey)
			}
			return sum, err
		}
		sum.Applied++
	}
	return sum, nil
}

func (e SendGridEvent) trackInput(typ model.EventType) TrackInput {
	in := TrackInput{
		Type:      typ,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Metadata:  map[string]any{"provider_event": e.Event},
	}
	if id, err := e.EmailID.Int64(); err == nil && id > 0 {
		in.EmailID = int(id)
	}
	// sg_message_id is "<X-Message-Id>.<filter suffix>"
	if mid, _, _ := strings.Cut(e.SGMessageID, "."); mid != "" {
		in.MessageID = mid
	}
	if e.Timestamp > 0 {
		in.At = time.Unix(e.Timestamp, 0).UTC()
	}
	switch typ {
	case model.EventClick:
		in.Metadata["url"] = e.URL
		in.Metadata["device_type"] = DeviceType(e.UserAgent)
	case model.EventOpen:
		in.Metadata["device_type"] = DeviceType(e.UserAgent)
	case model.EventBounce:
		if e.Reason != "" {
			in.Metadata["reason"] = e.Reason
		}
	}
	return in
}
