package delay

// Multiplier draws one region factor, as Compute would.
func (p *Policy) Multiplier() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regionFactor()
}

// Config returns the effective settings.
func (p *Policy) Config() Config { return p.cfg }
