package pipeline

// RunContext is the state one run threads through its categories: the
// cross-category dedup sets and the global item budget. It is owned by a
// single goroutine.
type RunContext struct {
	RunID           string
	Limit           int
	SeenProductIDs  map[string]struct{}
	SeenProductURLs map[string]struct{}
	collected       int
}

// NewRunContext starts an empty run. limit <= 0 means unlimited.
func NewRunContext(runID string, limit int) *RunContext {
	if limit < 0 {
		limit = 0
	}
	return &RunContext{
		RunID:           runID,
		Limit:           limit,
		SeenProductIDs:  make(map[string]struct{}),
		SeenProductURLs: make(map[string]struct{}),
	}
}

// FilterNew returns the ids not seen earlier in the run and marks them seen.
// Order is preserved and duplicates inside ids collapse.
func (rc *RunContext) FilterNew(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := rc.SeenProductIDs[id]; ok {
			continue
		}
		rc.SeenProductIDs[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MarkURL records productURL and reports whether it was new.
func (rc *RunContext) MarkURL(productURL string) bool {
	if _, ok := rc.SeenProductURLs[productURL]; ok {
		return false
	}
	rc.SeenProductURLs[productURL] = struct{}{}
	return true
}

// Collect counts n accepted items against the budget.
func (rc *RunContext) Collect(n int) {
	rc.collected += n
}

// Collected is the number of items accepted so far.
func (rc *RunContext) Collected() int {
	return rc.collected
}

// Remaining is the number of items still allowed. Zero means unlimited when
// no limit is set; check Exhausted to tell the cases apart.
func (rc *RunContext) Remaining() int {
	if rc.Limit == 0 {
		return 0
	}
	return max(rc.Limit-rc.collected, 0)
}

// Exhausted reports whether the item limit has been reached.
func (rc *RunContext) Exhausted() bool {
	return rc.Limit > 0 && rc.collected >= rc.Limit
}
