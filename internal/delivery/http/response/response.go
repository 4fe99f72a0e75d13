package response

import (
	"github.com/user/storewatch/internal/entity"
)

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type NotificationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// StoreResponse is a store with its rendered label, e.g. "UNKNOWN (418)".
type StoreResponse struct {
	entity.Store
	Label string `json:"label"`
}

func NewStoreResponse(s entity.Store) StoreResponse {
	return StoreResponse{Store: s, Label: s.Label().String()}
}

type StoreListResponse struct {
	Count  int             `json:"count"`
	Stores []StoreResponse `json:"stores"`
}

type HistoryResponse struct {
	URL     string                     `json:"url"`
	Entries []entity.CheckHistoryEntry `json:"entries"`
}

type LoadStoresResponse struct {
	Submitted int `json:"submitted"`
	Inserted  int `json:"inserted"`
}

type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type CountResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type TimelineResponse struct {
	Days   int                    `json:"days"`
	Points []entity.TimelinePoint `json:"points"`
}

type ChangesResponse struct {
	Count   int                   `json:"count"`
	Changes []entity.StatusChange `json:"changes"`
}

type DeadResponse struct {
	Count  int                `json:"count"`
	Stores []entity.DeadStore `json:"stores"`
}

// CheckResponse reports a finished manual pass.
type CheckResponse struct {
	PassID     string         `json:"pass_id"`
	Checked    int            `json:"checked"`
	Failed     int            `json:"failed"`
	ByStatus   map[string]int `json:"by_status"`
	DurationMS int64          `json:"duration_ms"`
}
