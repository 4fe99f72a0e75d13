package usecase_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
)

type recordedUpdate struct {
	URL    string
	Update entity.StatusUpdate
}

// fakeRepo is an in-memory StoreRepository that records what it is asked.
type fakeRepo struct {
	mu sync.Mutex

	urls      []string
	stores    map[string]*entity.Store
	updates   []recordedUpdate
	failOn    map[string]bool
	listErr   error
	newlyDead []string
	changes   []entity.StatusChange
	counts    map[entity.Status]int
	onCount   func()

	countCalls     int
	filterStatuses []entity.Status
	deadWindow     time.Duration
	changeMinutes  int
	changeDays     int
	byStatusAsked  entity.Status
	deleted        []entity.Status
	cleared        bool
}

var _ repository.StoreRepository = (*fakeRepo)(nil)

func newFakeRepo(urls ...string) *fakeRepo {
	r := &fakeRepo{urls: urls, stores: make(map[string]*entity.Store), failOn: make(map[string]bool)}
	for _, u := range urls {
		r.stores[u] = &entity.Store{URL: u, Status: entity.StatusUnchecked}
	}
	return r
}

func (r *fakeRepo) LoadURLs(_ context.Context, urls []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range urls {
		if _, ok := r.stores[u]; ok {
			continue
		}
		r.stores[u] = &entity.Store{URL: u, Status: entity.StatusUnchecked}
		r.urls = append(r.urls, u)
		n++
	}
	return n, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, url string, u entity.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[url] {
		return errors.New("write failed")
	}
	r.updates = append(r.updates, recordedUpdate{URL: url, Update: u})
	if s, ok := r.stores[url]; ok {
		s.Status = u.Label.Status
		s.CheckCount++
	}
	return nil
}

func (r *fakeRepo) AllURLs(context.Context) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]string(nil), r.urls...), nil
}

func (r *fakeRepo) Get(_ context.Context, url string) (*entity.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[url]
	if !ok {
		return nil, repository.ErrStoreNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) History(_ context.Context, url string, _ int) ([]entity.CheckHistoryEntry, error) {
	return []entity.CheckHistoryEntry{{Status: r.stores[url].Status}}, nil
}

func (r *fakeRepo) URLsByStatus(_ context.Context, status entity.Status) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byStatusAsked = status
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []string
	for _, u := range r.urls {
		if r.stores[u].Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeadSince(context.Context) ([]entity.DeadStore, error) { return nil, nil }

func (r *fakeRepo) CountsByStatus(context.Context) (map[entity.Status]int, error) {
	r.mu.Lock()
	r.countCalls++
	counts, hook := r.counts, r.onCount
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return counts, nil
}

func (r *fakeRepo) TotalCount(context.Context) (int, error) {
	total := 0
	for _, n := range r.counts {
		total += n
	}
	return total, nil
}

func (r *fakeRepo) CountByStatus(_ context.Context, s entity.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[s], nil
}

func (r *fakeRepo) Filtered(_ context.Context, statuses []entity.Status, _ string) ([]entity.Store, error) {
	r.filterStatuses = statuses
	return nil, nil
}

func (r *fakeRepo) Timeline(context.Context, int) ([]entity.TimelinePoint, error) { return nil, nil }

func (r *fakeRepo) StatusChanges(context.Context, time.Duration) ([]entity.StatusChange, error) {
	return r.changes, nil
}

func (r *fakeRepo) ChangesInDays(_ context.Context, days int) ([]entity.StatusChange, error) {
	r.changeDays = days
	return r.changes, nil
}

func (r *fakeRepo) ChangesInMinutes(_ context.Context, minutes int) ([]entity.StatusChange, error) {
	r.changeMinutes = minutes
	return r.changes, nil
}

func (r *fakeRepo) NewlyDead(_ context.Context, window time.Duration) ([]string, error) {
	r.deadWindow = window
	return r.newlyDead, nil
}

func (r *fakeRepo) BulkDeleteByStatus(_ context.Context, statuses []entity.Status) (int, error) {
	r.deleted = statuses
	return len(statuses), nil
}

func (r *fakeRepo) Remove(_ context.Context, url string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[url]
	delete(r.stores, url)
	return ok, nil
}

func (r *fakeRepo) ClearAll(context.Context) error {
	r.cleared = true
	return nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }

// fakeProber returns scripted labels and logs the call sequence.
type fakeProber struct {
	mu       sync.Mutex
	labels   map[string]entity.Label
	events   []string
	onPause  func()
	pauseErr error
}

var _ repository.StoreProber = (*fakeProber)(nil)

func (p *fakeProber) Check(ctx context.Context, url string) entity.ProbeResult {
	return p.Verify(ctx, url)
}

func (p *fakeProber) Verify(_ context.Context, url string) entity.ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "verify "+url)
	label, ok := p.labels[url]
	if !ok {
		label = entity.LabelOf(entity.StatusLive)
	}
	return entity.ProbeResult{
		URL:          url,
		Label:        label,
		Region:       "America/Denver",
		HTTPStatus:   200,
		ResponseTime: 120 * time.Millisecond,
	}
}

func (p *fakeProber) Pause(context.Context) error {
	p.mu.Lock()
	p.events = append(p.events, "pause")
	hook := p.onPause
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return p.pauseErr
}

type fakeNotifier struct {
	err     error
	dead    [][]string
	changes [][]entity.StatusChange
}

var _ repository.ChangeNotifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) NotifyDead(_ context.Context, urls []string) error {
	n.dead = append(n.dead, urls)
	return n.err
}

func (n *fakeNotifier) NotifyChanges(_ context.Context, changes []entity.StatusChange) error {
	n.changes = append(n.changes, changes)
	return n.err
}

func (n *fakeNotifier) TestConnection(context.Context) error { return n.err }

func (n *fakeNotifier) Enabled() bool { return n.err == nil }

type fakeCache struct {
	counts        *entity.StatusCounts
	gen           int64
	sets          int
	invalidations int
	pingErr       error
}

var _ repository.CountCache = (*fakeCache)(nil)

func (c *fakeCache) Get(context.Context) (*entity.StatusCounts, bool, error) {
	if c.counts == nil {
		return nil, false, nil
	}
	return c.counts, true, nil
}

func (c *fakeCache) Generation(context.Context) (int64, error) { return c.gen, nil }

func (c *fakeCache) Set(_ context.Context, counts *entity.StatusCounts, gen int64) error {
	if gen != c.gen {
		return nil
	}
	c.sets++
	c.counts = counts
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidations++
	c.gen++
	c.counts = nil
	return nil
}

func (c *fakeCache) Ping(context.Context) error { return c.pingErr }
