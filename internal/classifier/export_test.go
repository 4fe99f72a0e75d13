package classifier

// UnpaidPhrases returns a copy of the phrases in use.
func (c *Classifier) UnpaidPhrases() []string {
	return append([]string(nil), c.unpaid...)
}
