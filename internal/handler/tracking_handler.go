package handler

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// 1x1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const unsubscribedPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body><h1>You have been unsubscribed</h1><p>You will no longer receive these emails.</p></body></html>
`

// TrackingHandler serves the links embedded in outgoing mail. A tracking failure is
// logged and never changes what the recipient sees.
type TrackingHandler struct {
	Tracker *service.EventTracker
	Log     *zap.Logger
}

func (h *TrackingHandler) track(r *http.Request, typ model.EventType, metadata map[string]any) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		h.Log.Warn("tracking request with invalid email id", zap.String("path", r.URL.Path))
		return
	}
	ua := r.UserAgent()
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["device_type"] = service.DeviceType(ua)
	if country := r.Header.Get("CF-IPCountry"); country != "" {
		metadata["country"] = country
	}

	_, err = h.Tracker.Track(r.Context(), service.TrackInput{
		EmailID:   id,
		Type:      typ,
		Metadata:  metadata,
		IP:        clientIP(r),
		UserAgent: ua,
	})
	if err != nil {
		h.Log.Warn("tracking event not recorded", zap.Int("email_id", id), zap.String("type", string(typ)), zap.Error(err))
	}
}

func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.track(r, model.EventOpen, nil)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

// Click redirects to the url parameter. Only absolute http(s) targets are followed.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	u, err := url.Parse(target)
	if target == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	h.track(r, model.EventClick, map[string]any{"url": target})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.track(r, model.EventUnsubscribe, nil)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, unsubscribedPage)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
