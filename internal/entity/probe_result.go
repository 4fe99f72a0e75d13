package entity

import "time"

// ProbeResult is the outcome of one classified check of one URL.
type ProbeResult struct {
	URL          string
	Label        Label
	Region       string
	ResponseTime time.Duration
	HTTPStatus   int    // zero when no response was received
	Proxy        string // proxy used for the attempt that produced the result
	FellBack     bool   // the proxy failed and the direct retry produced the result
	Storefront   bool   // storefront platform markers were found in the page
	Err          error  // transport or internal error behind a DEAD/UNKNOWN label
}

// Update converts the result into the record persisted by the repository.
func (r ProbeResult) Update() StatusUpdate {
	u := StatusUpdate{Label: r.Label, Region: r.Region}
	if r.HTTPStatus != 0 {
		code := r.HTTPStatus
		u.HTTPStatus = &code
		rt := r.ResponseTime
		u.ResponseTime = &rt
	}
	return u
}
