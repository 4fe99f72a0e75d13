package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/pkg/utils"
)

const defaultHistoryLimit = 50

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// StoreRepoImpl provides a concrete implementation for the StoreRepository interface using PostgreSQL.
type StoreRepoImpl struct {
	db        DB
	displayTZ string
	now       func() time.Time
}

var _ repository.StoreRepository = (*StoreRepoImpl)(nil)

// NewStoreRepo creates a new instance of StoreRepoImpl. displayTZ is the
// IANA zone used to bucket timeline days.
func NewStoreRepo(db DB, displayTZ string) *StoreRepoImpl {
	if displayTZ == "" {
		displayTZ = "America/Los_Angeles"
	}
	return &StoreRepoImpl{db: db, displayTZ: displayTZ, now: time.Now}
}

// WithClock replaces the clock used to stamp checks and compute windows.
func (r *StoreRepoImpl) WithClock(now func() time.Time) *StoreRepoImpl {
	r.now = now
	return r
}

const storeColumns = `id, url, status, status_code, first_check, last_check, first_dead_date,
	check_count, timezone_checked, created_at, updated_at`

// LoadURLs inserts new stores as UNCHECKED in one statement; known URLs are left as they are.
func (r *StoreRepoImpl) LoadURLs(ctx context.Context, urls []string) (int, error) {
	clean := utils.CleanURLs(urls)
	if len(clean) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO stores (url, status, check_count)
		SELECT u, 'UNCHECKED', 0 FROM unnest($1::text[]) AS u
		ON CONFLICT (url) DO NOTHING;
	`
	tag, err := r.db.Exec(ctx, query, clean)
	if err != nil {
		return 0, fmt.Errorf("load urls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateStatus records one classification. The row is created when
// missing, locked, updated and given a history entry in one transaction.
func (r *StoreRepoImpl) UpdateStatus(ctx context.Context, url string, u entity.StatusUpdate) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("update status: empty url")
	}
	status := u.Label.Status
	if !status.Valid() || status == entity.StatusUnchecked {
		return fmt.Errorf("update status: cannot record status %q", status)
	}
	now := r.now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("update status: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO stores (url, status, check_count)
		VALUES ($1, 'UNCHECKED', 0)
		ON CONFLICT (url) DO NOTHING;
	`, url); err != nil {
		return fmt.Errorf("update status: ensure store: %w", err)
	}

	var (
		id        int64
		prev      string
		firstDead pgtype.Timestamptz
	)
	if err := tx.QueryRow(ctx, `
		SELECT id, status, first_dead_date FROM stores WHERE url = $1 FOR UPDATE;
	`, url).Scan(&id, &prev, &firstDead); err != nil {
		return fmt.Errorf("update status: lock store: %w", err)
	}

	var prevFirstDead *time.Time
	if firstDead.Valid {
		t := firstDead.Time
		prevFirstDead = &t
	}
	deadSince := nextFirstDead(entity.Status(prev), prevFirstDead, status, now)

	var code *int
	if status == entity.StatusUnknown && u.Label.Code != 0 {
		c := u.Label.Code
		code = &c
	}
	var region *string
	if u.Region != "" {
		region = &u.Region
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stores
		SET status = $2,
			status_code = $3,
			last_check = $4,
			first_check = COALESCE(first_check, $4),
			check_count = check_count + 1,
			timezone_checked = $5,
			first_dead_date = $6,
			updated_at = $4
		WHERE id = $1;
	`, id, string(status), code, now, region, deadSince); err != nil {
		return fmt.Errorf("update status: update store: %w", err)
	}

	var responseTime *float64
	if u.ResponseTime != nil {
		s := u.ResponseTime.Seconds()
		responseTime = &s
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO check_history (store_id, status, checked_at, response_time, status_code)
		VALUES ($1, $2, $3, $4, $5);
	`, id, string(status), now, responseTime, u.HTTPStatus); err != nil {
		return fmt.Errorf("update status: append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("update status: commit: %w", err)
	}
	return nil
}

// All returns every store ordered by URL.
// AllURLs returns every known URL ordered by URL.
func (r *StoreRepoImpl) AllURLs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT url FROM stores ORDER BY url;`)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	return urls, nil
}

// Get returns one store.
func (r *StoreRepoImpl) Get(ctx context.Context, url string) (*entity.Store, error) {
	row := r.db.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE url = $1;`, strings.TrimSpace(url))
	s, err := scanStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

// History returns the latest check entries of a store, newest first.
func (r *StoreRepoImpl) History(ctx context.Context, url string, limit int) ([]entity.CheckHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `
		SELECT ch.id, ch.store_id, ch.status, ch.checked_at, ch.response_time, ch.status_code
		FROM check_history ch
		JOIN stores s ON s.id = ch.store_id
		WHERE s.url = $1
		ORDER BY ch.checked_at DESC, ch.id DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, strings.TrimSpace(url), limit)
	if err != nil {
		return nil, fmt.Errorf("store history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.CheckHistoryEntry, error) {
		var (
			e      entity.CheckHistoryEntry
			status string
		)
		err := row.Scan(&e.ID, &e.StoreID, &status, &e.CheckedAt, &e.ResponseTime, &e.StatusCode)
		e.Status = entity.Status(status)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("store history: %w", err)
	}
	return entries, nil
}

// URLsByStatus returns the URLs currently in status.
func (r *StoreRepoImpl) URLsByStatus(ctx context.Context, status entity.Status) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT url FROM stores WHERE status = $1 ORDER BY url;`, string(status))
	if err != nil {
		return nil, fmt.Errorf("urls by status: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("urls by status: %w", err)
	}
	return urls, nil
}

// DeadSince lists DEAD stores with the start of their current death episode, longest dead first.
func (r *StoreRepoImpl) DeadSince(ctx context.Context) ([]entity.DeadStore, error) {
	query := `
		SELECT url, first_dead_date
		FROM stores
		WHERE status = 'DEAD' AND first_dead_date IS NOT NULL
		ORDER BY first_dead_date, url;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dead stores: %w", err)
	}
	dead, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.DeadStore, error) {
		var d entity.DeadStore
		err := row.Scan(&d.URL, &d.FirstDeadDate)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("dead stores: %w", err)
	}
	return dead, nil
}

// CountsByStatus returns the number of stores per status present in the table.
func (r *StoreRepoImpl) CountsByStatus(ctx context.Context) (map[entity.Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM stores GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("counts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.Status]int)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("counts by status: %w", err)
		}
		counts[entity.Status(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counts by status: %w", err)
	}
	return counts, nil
}

// TotalCount returns the number of stores.
func (r *StoreRepoImpl) TotalCount(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stores;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	return int(n), nil
}

// CountByStatus returns the number of stores in status.
func (r *StoreRepoImpl) CountByStatus(ctx context.Context, status entity.Status) (int, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stores WHERE status = $1;`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return int(n), nil
}

// Filtered returns stores whose status is in statuses and whose URL
// contains search, ignoring case. An empty search matches every URL.
func (r *StoreRepoImpl) Filtered(ctx context.Context, statuses []entity.Status, search string) ([]entity.Store, error) {
	if len(statuses) == 0 {
		return []entity.Store{}, nil
	}
	query := `
		SELECT ` + storeColumns + `
		FROM stores
		WHERE status = ANY($1) AND url ILIKE $2 ESCAPE '\'
		ORDER BY url;
	`
	rows, err := r.db.Query(ctx, query, statusStrings(statuses), likePattern(search))
	if err != nil {
		return nil, fmt.Errorf("filter stores: %w", err)
	}
	return collectStores(rows)
}

// Timeline counts history entries per day and status. Days are taken in
// the display timezone; days <= 0 covers the whole history.
func (r *StoreRepoImpl) Timeline(ctx context.Context, days int) ([]entity.TimelinePoint, error) {
	var since *time.Time
	if days > 0 {
		t := r.now().UTC().AddDate(0, 0, -days)
		since = &t
	}
	query := `
		SELECT to_char((checked_at AT TIME ZONE $1)::date, 'YYYY-MM-DD') AS day, status, COUNT(*)
		FROM check_history
		WHERE $2::timestamptz IS NULL OR checked_at >= $2
		GROUP BY 1, 2
		ORDER BY 1, 2;
	`
	rows, err := r.db.Query(ctx, query, r.displayTZ, since)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.TimelinePoint, error) {
		var (
			p      entity.TimelinePoint
			status string
			n      int64
		)
		err := row.Scan(&p.Date, &status, &n)
		p.Status = entity.Status(status)
		p.Count = int(n)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return points, nil
}

// StatusChanges returns the transitions recorded within window, newest
// first. Predecessors are looked up over the full history, so the first
// entry inside the window still pairs with the one before it.
func (r *StoreRepoImpl) StatusChanges(ctx context.Context, window time.Duration) ([]entity.StatusChange, error) {
	if window <= 0 {
		return []entity.StatusChange{}, nil
	}
	since := r.now().UTC().Add(-window)

	query := `
		WITH ordered AS (
			SELECT s.url, ch.id, ch.status, ch.checked_at,
				LAG(ch.status) OVER (PARTITION BY ch.store_id ORDER BY ch.checked_at, ch.id) AS prev_status
			FROM check_history ch
			JOIN stores s ON s.id = ch.store_id
		)
		SELECT url, prev_status, status, checked_at
		FROM ordered
		WHERE prev_status IS NOT NULL
			AND prev_status <> status
			AND checked_at >= $1
		ORDER BY checked_at DESC, id DESC;
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("status changes: %w", err)
	}
	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.StatusChange, error) {
		var (
			c        entity.StatusChange
			from, to string
		)
		err := row.Scan(&c.URL, &from, &to, &c.ChangedAt)
		c.FromStatus = entity.Status(from)
		c.ToStatus = entity.Status(to)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("status changes: %w", err)
	}
	return changes, nil
}

// ChangesInDays is StatusChanges over the trailing days.
func (r *StoreRepoImpl) ChangesInDays(ctx context.Context, days int) ([]entity.StatusChange, error) {
	return r.StatusChanges(ctx, time.Duration(days)*24*time.Hour)
}

// ChangesInMinutes is StatusChanges over the trailing minutes.
func (r *StoreRepoImpl) ChangesInMinutes(ctx context.Context, minutes int) ([]entity.StatusChange, error) {
	return r.StatusChanges(ctx, time.Duration(minutes)*time.Minute)
}

// NewlyDead returns the URLs whose transition into DEAD falls within window.
func (r *StoreRepoImpl) NewlyDead(ctx context.Context, window time.Duration) ([]string, error) {
	changes, err := r.StatusChanges(ctx, window)
	if err != nil {
		return nil, err
	}
	return newlyDeadURLs(changes), nil
}

// BulkDeleteByStatus removes every store in statuses; history goes with them.
func (r *StoreRepoImpl) BulkDeleteByStatus(ctx context.Context, statuses []entity.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM stores WHERE status = ANY($1);`, statusStrings(statuses))
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Remove deletes one store and reports whether it existed.
func (r *StoreRepoImpl) Remove(ctx context.Context, url string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM stores WHERE url = $1;`, strings.TrimSpace(url))
	if err != nil {
		return false, fmt.Errorf("remove store: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearAll deletes every store and every history entry.
func (r *StoreRepoImpl) ClearAll(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("clear all: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM check_history;`); err != nil {
		return fmt.Errorf("clear all: history: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stores;`); err != nil {
		return fmt.Errorf("clear all: stores: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("clear all: commit: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *StoreRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanStore(row pgx.Row) (entity.Store, error) {
	var (
		s      entity.Store
		status string
		count  int32
	)
	err := row.Scan(
		&s.ID,
		&s.URL,
		&status,
		&s.StatusCode,
		&s.FirstCheck,
		&s.LastCheck,
		&s.FirstDeadDate,
		&count,
		&s.TimezoneChecked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	s.Status = entity.Status(status)
	s.CheckCount = int(count)
	return s, err
}

func collectStores(rows pgx.Rows) ([]entity.Store, error) {
	stores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Store, error) {
		return scanStore(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stores: %w", err)
	}
	return stores, nil
}

func statusStrings(statuses []entity.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a contains-pattern with LIKE wildcards escaped.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(search)) + "%"
}
