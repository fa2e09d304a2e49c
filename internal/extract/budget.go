package extract

import "sync"

// LabelBudgetTracker counts the rows written per label during one extraction
// run and enforces the per-label cap. It is safe for concurrent use.
type LabelBudgetTracker struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
}

// NewLabelBudgetTracker creates a tracker capping every label at max rows.
// A non-positive max disables the cap.
func NewLabelBudgetTracker(max int) *LabelBudgetTracker {
	return &LabelBudgetTracker{max: max, counts: make(map[string]int)}
}

// Allow reports whether label can take at least one more row.
func (t *LabelBudgetTracker) Allow(label string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocked(label)
}

func (t *LabelBudgetTracker) allowLocked(label string) bool {
	return t.max <= 0 || t.counts[label] < t.max
}

// Reserve claims one row for label, returning false once the cap is reached.
func (t *LabelBudgetTracker) Reserve(label string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.allowLocked(label) {
		return false
	}
	t.counts[label]++
	return true
}

// Release returns a reserved row to label after it failed to be written.
func (t *LabelBudgetTracker) Release(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[label] > 0 {
		t.counts[label]--
	}
}

// Count returns the rows recorded for label.
func (t *LabelBudgetTracker) Count(label string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[label]
}
