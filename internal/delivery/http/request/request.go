package request

// LoadStoresRequest adds URLs to the monitored set.
type LoadStoresRequest struct {
	URLs []string `json:"urls"`
}

// IntervalRequest changes the scheduler interval.
type IntervalRequest struct {
	Minutes int `json:"minutes"`
}

// ProxyRequest pins the manual proxy. An empty URL clears it.
type ProxyRequest struct {
	URL string `json:"url"`
}
