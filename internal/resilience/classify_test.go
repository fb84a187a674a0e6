package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		class     Class
		retryable bool
	}{
		{"domain validation", fmt.Errorf("update: %w: name is required", domain.ErrValidation), ClassValidation, false},
		{"http 400", &StatusError{Status: 400, Message: "end_date is required"}, ClassValidation, false},
		{"domain conflict", fmt.Errorf("update: %w", domain.ErrConflict), ClassConflict, true},
		{"http 409", &StatusError{Status: 409}, ClassConflict, true},
		{"domain rate limited", domain.ErrRateLimited, ClassRateLimit, true},
		{"http 429", &StatusError{Status: 429}, ClassRateLimit, true},
		{"http 500", &StatusError{Status: 500}, ClassServerError, false},
		{"http 503 wrapped", fmt.Errorf("get: %w", &StatusError{Status: 503}), ClassServerError, false},
		{"circuit open", ErrCircuitOpen, ClassServerError, false},
		{"no response", fmt.Errorf("put: %w", ErrNetwork), ClassNetwork, true},
		{"url error", &url.Error{Op: "Put", URL: "http://x", Err: errors.New("connection refused")}, ClassNetwork, true},
		{"deadline", context.DeadlineExceeded, ClassNetwork, true},
		{"not found", &StatusError{Status: 404}, ClassUnknown, false},
		{"canceled", context.Canceled, ClassUnknown, false},
		{"anything else", errors.New("boom"), ClassUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			if f.Class != tt.class {
				t.Errorf("Class = %s, want %s", f.Class, tt.class)
			}
			if f.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", f.Retryable, tt.retryable)
			}
			if f.Message == "" {
				t.Error("empty user message")
			}
			if !errors.Is(f, tt.err) {
				t.Error("Failure does not unwrap to the original error")
			}
		})
	}
}

func TestClassifyMessages(t *testing.T) {
	f := Classify(fmt.Errorf("save general: %w: phases[0].name is required", domain.ErrValidation))
	if f.Message != "phases[0].name is required" {
		t.Errorf("validation message = %q", f.Message)
	}

	f = Classify(&StatusError{Status: 400, Message: "status must be one of: planned"})
	if f.Message != "status must be one of: planned" {
		t.Errorf("remote validation message = %q", f.Message)
	}

	f = Classify(errors.New("pq: relation does not exist"))
	if f.Message != MessageFor(ClassUnknown) {
		t.Errorf("unknown failure leaked technical message %q", f.Message)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
	f := Classify(domain.ErrConflict)
	if Classify(fmt.Errorf("wrapped: %w", f)) != f {
		t.Error("classifying a Failure should return it unchanged")
	}
}
