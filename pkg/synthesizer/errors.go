package synthesizer

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// All of these are fatal to a narration run, they only differ in what we tell the user.
var (
	ErrAuth         = errors.New("synthesis authentication failed")
	ErrRateLimited  = errors.New("synthesis rate limited")
	ErrInputTooLong = errors.New("synthesis input too long")
	ErrTransient    = errors.New("synthesis service unavailable")
	ErrUnexpected   = errors.New("synthesis failed unexpectedly")
)

// errorForStatus maps a non-2xx HTTP status of a synthesis service to one of the sentinels above.
func errorForStatus(provider string, status int, body []byte) error {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusPaymentRequired:
		sentinel = ErrAuth
	case status == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case status == http.StatusRequestEntityTooLarge:
		sentinel = ErrInputTooLong
	case status == http.StatusRequestTimeout || status >= 500:
		sentinel = ErrTransient
	default:
		sentinel = ErrUnexpected
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return errors.Wrapf(sentinel, "%s responded %d: %s", provider, status, body)
}

// errorForTransport keeps context cancellation recognizable, everything else is a network blip.
func errorForTransport(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "%s request aborted", provider)
	}
	return errors.Wrapf(ErrTransient, "%s request failed: %v", provider, err)
}
