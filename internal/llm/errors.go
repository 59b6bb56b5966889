package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"
)

// Error classes used to pick a retry action.
var (
	ErrRateLimit     = errors.New("rate limited")
	ErrTimeout       = errors.New("timeout or connection failure")
	ErrModelNotFound = errors.New("model not found")
	ErrOther         = errors.New("provider error")

	ErrNoProviders   = errors.New("no providers configured")
	ErrNoBackend     = errors.New("no backend for provider family")
	ErrEmptyResponse = errors.New("empty completion")
)

// statusCoder matches HTTP client errors that expose their status code.
type statusCoder interface {
	StatusCode() int
}

// ClassifyError maps a backend error onto one of the four error classes.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range []error{ErrRateLimit, ErrTimeout, ErrModelNotFound, ErrOther} {
		if errors.Is(err, class) {
			return class
		}
	}
	if errors.Is(err, ErrNoBackend) {
		return ErrModelNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if class := classifyStatus(apiErr.Code); class != nil {
			return class
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if class := classifyStatus(apiErrPtr.Code); class != nil {
			return class
		}
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if class := classifyStatus(sc.StatusCode()); class != nil {
			return class
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "quota", "rate limit", "rate_limit", "resource_exhausted"):
		return ErrRateLimit
	case containsAny(msg, "timeout", "connection", "deadline"):
		return ErrTimeout
	case containsAny(msg, "404", "not found", "does not exist", "decommissioned", "model_not_found"):
		return ErrModelNotFound
	}
	return ErrOther
}

func classifyStatus(code int) error {
	switch code {
	case 429:
		return ErrRateLimit
	case 404:
		return ErrModelNotFound
	case 408, 504:
		return ErrTimeout
	}
	return nil
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
