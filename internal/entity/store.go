package entity

import "time"

// Store mirrors a row of the `stores` table.
type Store struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	Status          Status     `json:"status"`
	StatusCode      *int       `json:"status_code,omitempty"` // only set for UNKNOWN with a non-standard code
	FirstCheck      *time.Time `json:"first_check"`
	LastCheck       *time.Time `json:"last_check"`
	FirstDeadDate   *time.Time `json:"first_dead_date"`
	CheckCount      int        `json:"check_count"`
	TimezoneChecked *string    `json:"timezone_checked"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Label rebuilds the classification label stored for this row.
func (s *Store) Label() Label {
	l := Label{Status: s.Status}
	if s.StatusCode != nil {
		l.Code = *s.StatusCode
	}
	return l
}

// CheckHistoryEntry mirrors a row of the `check_history` table.
type CheckHistoryEntry struct {
	ID           int64     `json:"id"`
	StoreID      int64     `json:"store_id"`
	Status       Status    `json:"status"`
	CheckedAt    time.Time `json:"checked_at"`
	ResponseTime *float64  `json:"response_time,omitempty"` // seconds
	StatusCode   *int      `json:"status_code,omitempty"`   // HTTP status observed, if any
}

// StatusChange is derived from two adjacent history entries of one store.
type StatusChange struct {
	URL        string    `json:"url"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
}

// TimelinePoint is the number of checks with a status on one display day.
type TimelinePoint struct {
	Date   string `json:"date"` // YYYY-MM-DD in the display timezone
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// DeadStore is a DEAD store with the start of its current death episode.
type DeadStore struct {
	URL           string    `json:"url"`
	FirstDeadDate time.Time `json:"first_dead_date"`
}

// StatusUpdate is one classification to be recorded by UpdateStatus.
type StatusUpdate struct {
	Label        Label
	Region       string
	ResponseTime *time.Duration
	HTTPStatus   *int
}

// StatusCounts holds per-status store counts and the overall total.
type StatusCounts struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
}
