package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/storewatch/internal/delay"
	"github.com/user/storewatch/internal/delivery/http/request"
	"github.com/user/storewatch/internal/delivery/http/response"
	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/proxy"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/internal/scheduler"
	"github.com/user/storewatch/internal/usecase"
)

const maxHistoryLimit = 500

// StoreService is the store façade the API reads and writes through.
type StoreService interface {
	Load(ctx context.Context, urls []string) (int, error)
	List(ctx context.Context, statuses []entity.Status, search string) ([]entity.Store, error)
	Get(ctx context.Context, url string) (*entity.Store, error)
	History(ctx context.Context, url string, limit int) ([]entity.CheckHistoryEntry, error)
	Stats(ctx context.Context) (*entity.StatusCounts, error)
	Count(ctx context.Context, status entity.Status) (int, error)
	Timeline(ctx context.Context, days int) ([]entity.TimelinePoint, error)
	Changes(ctx context.Context, days, minutes int) ([]entity.StatusChange, error)
	Dead(ctx context.Context) ([]entity.DeadStore, error)
	DeleteByStatus(ctx context.Context, statuses []entity.Status) (int, error)
	Remove(ctx context.Context, url string) error
	ClearAll(ctx context.Context) error
	Health(ctx context.Context) usecase.Health
}

// CheckRunner runs manual check passes on the request goroutine.
type CheckRunner interface {
	CheckAll(ctx context.Context) (*usecase.Summary, error)
	RecheckDead(ctx context.Context) (*usecase.Summary, error)
}

// SchedulerControl starts, stops and reports the background checker.
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop() error
	SetInterval(minutes int) error
	Status() scheduler.Status
}

// ProxyControl exposes the manual proxy override.
type ProxyControl interface {
	Info() proxy.Info
	SetOverride(raw string) error
}

// RegionReporter describes the simulated probing regions.
type RegionReporter interface {
	Regions() delay.Snapshot
}

// Deps lists everything the handler talks to. SchedulerContext bounds the
// background loop and must outlive individual requests.
type Deps struct {
	Stores           StoreService
	Checks           CheckRunner
	Scheduler        SchedulerControl
	SchedulerContext context.Context
	Proxy            ProxyControl
	Regions          RegionReporter
	Notifier         repository.ChangeNotifier
	Logger           *zap.Logger
}

type Handler struct {
	stores    StoreService
	checks    CheckRunner
	scheduler SchedulerControl
	schedCtx  context.Context
	proxy     ProxyControl
	regions   RegionReporter
	notifier  repository.ChangeNotifier
	logger    *zap.Logger
}

func NewHandler(d Deps) *Handler {
	schedCtx := d.SchedulerContext
	if schedCtx == nil {
		schedCtx = context.Background()
	}
	return &Handler{
		stores:    d.Stores,
		checks:    d.Checks,
		scheduler: d.Scheduler,
		schedCtx:  schedCtx,
		proxy:     d.Proxy,
		regions:   d.Regions,
		notifier:  d.Notifier,
		logger:    d.Logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.stores.Health(r.Context())
	resp := response.HealthResponse{Status: "ok", Database: "healthy", Cache: "healthy"}
	if health.Database != nil {
		h.logger.Error("Health check failed for postgres", zap.Error(health.Database))
		resp.Database = "unhealthy"
	}
	if health.Cache != nil {
		h.logger.Error("Health check failed for redis", zap.Error(health.Cache))
		resp.Cache = "unhealthy"
	}
	if !health.OK() {
		resp.Status = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleListStores(w http.ResponseWriter, r *http.Request) {
	statuses, err := entity.ParseStatusList(r.URL.Query().Get("status"))
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stores, err := h.stores.List(r.Context(), statuses, r.URL.Query().Get("q"))
	if err != nil {
		h.internalError(w, "Failed to list stores", err)
		return
	}

	resp := response.StoreListResponse{Count: len(stores), Stores: make([]response.StoreResponse, 0, len(stores))}
	for _, s := range stores {
		resp.Stores = append(resp.Stores, response.NewStoreResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleLoadStores(w http.ResponseWriter, r *http.Request) {
	var req request.LoadStoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inserted, err := h.stores.Load(r.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, usecase.ErrNoURLs) {
			h.writeJSONError(w, "URLs list cannot be empty", http.StatusBadRequest)
			return
		}
		h.internalError(w, "Failed to load stores", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, response.LoadStoresResponse{Submitted: len(req.URLs), Inserted: inserted})
}

func (h *Handler) HandleDeleteByStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := entity.ParseStatusList(r.URL.Query().Get("status"))
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := h.stores.DeleteByStatus(r.Context(), statuses)
	if err != nil {
		if errors.Is(err, usecase.ErrNoStatuses) {
			h.writeJSONError(w, "status query parameter is required", http.StatusBadRequest)
			return
		}
		h.internalError(w, "Failed to delete stores", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.DeleteResponse{Deleted: deleted})
}

func (h *Handler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.stores.ClearAll(r.Context()); err != nil {
		h.internalError(w, "Failed to clear stores", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Status: "success", Message: "All stores removed"})
}

func (h *Handler) HandleGetStore(w http.ResponseWriter, r *http.Request) {
	url, ok := h.requireURL(w, r)
	if !ok {
		return
	}

	store, err := h.stores.Get(r.Context(), url)
	if err != nil {
		h.storeError(w, "Failed to get store", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewStoreResponse(*store))
}

func (h *Handler) HandleRemoveStore(w http.ResponseWriter, r *http.Request) {
	url, ok := h.requireURL(w, r)
	if !ok {
		return
	}

	if err := h.stores.Remove(r.Context(), url); err != nil {
		h.storeError(w, "Failed to remove store", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.DeleteResponse{Deleted: 1})
}

func (h *Handler) HandleStoreHistory(w http.ResponseWriter, r *http.Request) {
	url, ok := h.requireURL(w, r)
	if !ok {
		return
	}
	limit, ok := h.intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := h.stores.History(r.Context(), url, limit)
	if err != nil {
		h.storeError(w, "Failed to load history", err)
		return
	}
	if entries == nil {
		entries = []entity.CheckHistoryEntry{}
	}
	h.writeJSON(w, http.StatusOK, response.HistoryResponse{URL: url, Entries: entries})
}

// HandleStats returns every status count, or one count with ?status=.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := entity.ParseStatus(raw)
		if err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, err := h.stores.Count(r.Context(), status)
		if err != nil {
			h.internalError(w, "Failed to count stores", err)
			return
		}
		h.writeJSON(w, http.StatusOK, response.CountResponse{Status: string(status), Count: n})
		return
	}

	counts, err := h.stores.Stats(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count stores", err)
		return
	}
	resp := response.StatsResponse{Total: counts.Total, ByStatus: make(map[string]int, len(counts.ByStatus))}
	for s, n := range counts.ByStatus {
		resp.ByStatus[string(s)] = n
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intParam(w, r, "days", 0)
	if !ok {
		return
	}

	points, err := h.stores.Timeline(r.Context(), days)
	if err != nil {
		h.internalError(w, "Failed to build timeline", err)
		return
	}
	if points == nil {
		points = []entity.TimelinePoint{}
	}
	h.writeJSON(w, http.StatusOK, response.TimelineResponse{Days: days, Points: points})
}

func (h *Handler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intParam(w, r, "days", 0)
	if !ok {
		return
	}
	minutes, ok := h.intParam(w, r, "minutes", 0)
	if !ok {
		return
	}

	changes, err := h.stores.Changes(r.Context(), days, minutes)
	if err != nil {
		h.internalError(w, "Failed to load changes", err)
		return
	}
	if changes == nil {
		changes = []entity.StatusChange{}
	}
	h.writeJSON(w, http.StatusOK, response.ChangesResponse{Count: len(changes), Changes: changes})
}

func (h *Handler) HandleDeadStores(w http.ResponseWriter, r *http.Request) {
	dead, err := h.stores.Dead(r.Context())
	if err != nil {
		h.internalError(w, "Failed to load dead stores", err)
		return
	}
	if dead == nil {
		dead = []entity.DeadStore{}
	}
	h.writeJSON(w, http.StatusOK, response.DeadResponse{Count: len(dead), Stores: dead})
}

func (h *Handler) HandleCheckAll(w http.ResponseWriter, r *http.Request) {
	h.runCheck(w, r, h.checks.CheckAll)
}

func (h *Handler) HandleRecheckDead(w http.ResponseWriter, r *http.Request) {
	h.runCheck(w, r, h.checks.RecheckDead)
}

func (h *Handler) runCheck(w http.ResponseWriter, r *http.Request, run func(context.Context) (*usecase.Summary, error)) {
	sum, err := run(r.Context())
	if err != nil {
		h.internalError(w, "Check pass failed", err)
		return
	}
	resp := response.CheckResponse{
		PassID:     sum.PassID,
		Checked:    sum.Checked,
		Failed:     sum.Failed,
		ByStatus:   make(map[string]int, len(sum.ByStatus)),
		DurationMS: sum.Duration.Milliseconds(),
	}
	for s, n := range sum.ByStatus {
		resp.ByStatus[string(s)] = n
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) HandleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(h.schedCtx); err != nil {
		h.schedulerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) HandleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Stop(); err != nil {
		h.schedulerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) HandleSchedulerInterval(w http.ResponseWriter, r *http.Request) {
	var req request.IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.SetInterval(req.Minutes); err != nil {
		h.schedulerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) HandleProxyInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.proxy.Info())
}

func (h *Handler) HandleSetProxy(w http.ResponseWriter, r *http.Request) {
	var req request.ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.proxy.SetOverride(req.URL); err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.proxy.Info())
}

func (h *Handler) HandleRegions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.regions.Regions())
}

func (h *Handler) HandleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.TestConnection(r.Context()); err != nil {
		h.notifyError(w, "Test notification failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Status: "success", Message: "Test message sent"})
}

// HandleSendChanges pushes the transitions of the chosen window to the chat.
func (h *Handler) HandleSendChanges(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intParam(w, r, "days", 0)
	if !ok {
		return
	}
	minutes, ok := h.intParam(w, r, "minutes", 0)
	if !ok {
		return
	}

	changes, err := h.stores.Changes(r.Context(), days, minutes)
	if err != nil {
		h.internalError(w, "Failed to load changes", err)
		return
	}
	if len(changes) == 0 {
		h.writeJSON(w, http.StatusOK, response.NotificationResponse{Status: "skipped", Message: "No status changes in the selected window"})
		return
	}
	if err := h.notifier.NotifyChanges(r.Context(), changes); err != nil {
		h.notifyError(w, "Change summary failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NotificationResponse{Status: "success", Message: "Change summary sent", Count: len(changes)})
}

func (h *Handler) requireURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return "", false
	}
	return url, true
}

// intParam reads a non-negative integer query parameter.
func (h *Handler) intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.writeJSONError(w, "Invalid "+name+" query parameter", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (h *Handler) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, repository.ErrStoreNotFound) {
		h.writeJSONError(w, "Store not found", http.StatusNotFound)
		return
	}
	h.internalError(w, msg, err)
}

func (h *Handler) schedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidInterval):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, scheduler.ErrNotRunning), errors.Is(err, scheduler.ErrNoCallback):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		h.internalError(w, "Scheduler operation failed", err)
	}
}

func (h *Handler) notifyError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, repository.ErrNotConfigured) {
		h.writeJSONError(w, "Telegram is not configured", http.StatusConflict)
		return
	}
	h.logger.Error(msg, zap.Error(err))
	h.writeJSONError(w, msg, http.StatusBadGateway)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
