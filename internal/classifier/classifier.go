// Package classifier turns an HTTP response, or the failure to get one,
// into a store status label.
package classifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/user/storewatch/internal/entity"
)

// DefaultUnpaidPhrases are shown by the storefront platform when a shop is
// closed for non-payment. They are matched against the lowercased body.
var DefaultUnpaidPhrases = []string{
	"sorry, this store is currently unavailable",
	"this store is unavailable",
	"store is temporarily unavailable",
	"this shop is currently unavailable",
}

// Classifier maps responses to labels. The zero value is not usable, use New.
type Classifier struct {
	unpaid []string
}

// New returns a classifier matching the given unpaid phrases, or the
// default phrases when none are given.
func New(unpaidPhrases ...string) *Classifier {
	if len(unpaidPhrases) == 0 {
		unpaidPhrases = DefaultUnpaidPhrases
	}
	phrases := make([]string, 0, len(unpaidPhrases))
	for _, p := range unpaidPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Classifier{unpaid: phrases}
}

// Classify labels a received response. body may be passed in any case.
func (c *Classifier) Classify(code int, body string) entity.Label {
	switch {
	case code == http.StatusOK:
		if c.isUnpaidPage(strings.ToLower(body)) {
			return entity.LabelOf(entity.StatusUnpaid)
		}
		// Missing platform markers are not proof of death.
		return entity.LabelOf(entity.StatusLive)
	case code == http.StatusNotFound:
		return entity.LabelOf(entity.StatusDead)
	case code == http.StatusForbidden:
		return entity.LabelOf(entity.StatusUnpaid)
	case code >= http.StatusInternalServerError:
		return entity.LabelOf(entity.StatusUnknown)
	default:
		return entity.Label{Status: entity.StatusUnknown, Code: code}
	}
}

func (c *Classifier) isUnpaidPage(lowerBody string) bool {
	for _, phrase := range c.unpaid {
		if strings.Contains(lowerBody, phrase) {
			return true
		}
	}
	return false
}

// ErrInternal marks a failure that is not a transport problem, such as a
// recovered panic. Such failures classify as UNKNOWN.
var ErrInternal = errors.New("internal probe error")

// TransportError wraps a failure to obtain or read a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ClassifyError labels a failed attempt. Transport failures count as
// evidence of death; callers re-check before trusting a DEAD.
func ClassifyError(err error) entity.Label {
	if err != nil && !errors.Is(err, ErrInternal) && IsTransportError(err) {
		return entity.LabelOf(entity.StatusDead)
	}
	return entity.LabelOf(entity.StatusUnknown)
}

// IsTransportError reports whether err came from the network layer:
// timeouts, refused or reset connections, DNS and proxy failures, or
// anything explicitly wrapped in a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
