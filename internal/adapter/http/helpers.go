package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/moogar0880/problems"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
	"github.com/Strob0t/ReleaseForge/internal/service"
)

const problemContentType = "application/problem+json"

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		} else {
			writeProblem(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, detail string) {
	p := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(typ).
		WithDetail(detail)
	writeProblemBody(w, status, p)
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write problem response", "error", err)
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "not_found", notFoundMsg)
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, r, http.StatusConflict, "conflict", "resource was modified by another request")
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeProblem(w, r, http.StatusBadRequest, "validation_error", msg)
	case errors.Is(err, domain.ErrRateLimited):
		writeProblem(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
	case strings.Contains(err.Error(), "SQLSTATE 23505"):
		writeProblem(w, r, http.StatusConflict, "already_exists", "resource already exists")
	default:
		writeInternalError(w, r, err)
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeProblem(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
}

// saveProblem is the body of a failed orchestrated save. Result carries the
// sections of a full-plan save that were committed before the failure.
type saveProblem struct {
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Status    int                 `json:"status"`
	Detail    string              `json:"detail"`
	Instance  string              `json:"instance"`
	Class     resilience.Class    `json:"class"`
	Retryable bool                `json:"retryable"`
	Result    *service.SaveResult `json:"result,omitempty"`
}

var failureStatus = map[resilience.Class]int{
	resilience.ClassValidation:  http.StatusBadRequest,
	resilience.ClassConflict:    http.StatusConflict,
	resilience.ClassRateLimit:   http.StatusTooManyRequests,
	resilience.ClassServerError: http.StatusBadGateway,
	resilience.ClassNetwork:     http.StatusServiceUnavailable,
	resilience.ClassUnknown:     http.StatusInternalServerError,
}

// writeFailure answers a failed save with its user message. The technical
// cause is only logged.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, partial *service.SaveResult) {
	f := resilience.Classify(err)
	status, ok := failureStatus[f.Class]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "save failed", "class", f.Class, "error", f.Err)
	}
	if partial != nil && len(partial.Sections) == 0 {
		partial = nil
	}
	p := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(string(f.Class)).
		WithDetail(f.Message)
	writeProblemBody(w, status, saveProblem{
		Type:      p.Type,
		Title:     p.Title,
		Status:    p.Status,
		Detail:    p.Detail,
		Instance:  p.Instance,
		Class:     f.Class,
		Retryable: f.Retryable,
		Result:    partial,
	})
}
