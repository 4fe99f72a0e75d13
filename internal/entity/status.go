package entity

import (
	"fmt"
	"strings"
)

// Status is the classification of a store at a point in time.
type Status string

const (
	StatusUnchecked Status = "UNCHECKED"
	StatusLive      Status = "LIVE"
	StatusDead      Status = "DEAD"
	StatusUnpaid    Status = "UNPAID"
	StatusUnknown   Status = "UNKNOWN"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusLive, StatusDead, StatusUnpaid, StatusUnknown, StatusUnchecked}

// CheckedStatuses are the statuses a probe can produce.
var CheckedStatuses = []Status{StatusLive, StatusDead, StatusUnpaid, StatusUnknown}

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts a status name in any case. A rendered label such as
// "UNKNOWN (418)" parses to StatusUnknown.
func ParseStatus(raw string) (Status, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

// ParseStatusList parses a comma-separated list of statuses, ignoring blanks.
func ParseStatusList(raw string) ([]Status, error) {
	var statuses []Status
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseStatus(part)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// Label is a Status plus, for UNKNOWN, the non-standard HTTP code that
// produced it. Code is zero when there is nothing to attach.
type Label struct {
	Status Status `json:"status"`
	Code   int    `json:"code,omitempty"`
}

// LabelOf returns a label without a code.
func LabelOf(s Status) Label { return Label{Status: s} }

func (l Label) String() string {
	if l.Status == StatusUnknown && l.Code != 0 {
		return fmt.Sprintf("%s (%d)", l.Status, l.Code)
	}
	return string(l.Status)
}
