// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/middleware"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes typed errors as {"detail": msg}. Anything else is logged and
// hidden behind a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := appErrors.StatusCode(err)
	if !appErrors.Public(err) {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, status, map[string]string{"detail": "Internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.NewBadRequest("invalid body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, appErrors.NewBadRequest("invalid %s", name)
	}
	return id, nil
}

// queryInt returns def when the parameter is absent and a 400 when it is not a number.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, appErrors.NewBadRequest("%s must be an integer", name)
	}
	return n, nil
}

func paging(r *http.Request) (skip, limit int, err error) {
	if skip, err = queryInt(r, "skip", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit", 20); err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

// queryList accepts both repeated parameters and comma separated values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
