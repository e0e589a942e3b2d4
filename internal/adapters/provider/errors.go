package provider

import (
	"context"
	"errors"

	"reviewpulse/internal/domain"
)

// Wrap turns a transport error into a *domain.ProviderError for p.
// Already-typed provider and config errors pass through.
func Wrap(p domain.Platform, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *domain.ProviderError
	var ce *domain.ConfigError
	if errors.As(err, &pe) || errors.As(err, &ce) {
		return err
	}
	return &domain.ProviderError{Provider: p, Op: op, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	var se *StatusError
	return !errors.As(err, &se)
}

// Unavailable reports whether err means the endpoint exists but is closed to
// us (missing, or no permission), which is what triggers fallbacks.
func Unavailable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized)
}
