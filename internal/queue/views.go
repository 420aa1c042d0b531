package queue

// Pending returns the items awaiting review in arrival order.
func (q *Queue) Pending() []Item {
	return q.filter(func(it Item) bool { return it.State == StatePending })
}

// Approved returns the items ready for display in arrival order.
func (q *Queue) Approved() []Item {
	return q.filter(func(it Item) bool { return it.State == StateApproved && !it.Removed })
}

// Displayed returns the items that have been shown and not dismissed, in
// arrival order.
func (q *Queue) Displayed() []Item {
	return q.filter(func(it Item) bool { return it.State == StateDisplayed })
}

// History returns every item ever queued, dismissed and removed ones
// included, in arrival order.
func (q *Queue) History() []Item {
	return q.filter(func(Item) bool { return true })
}

// Get returns the item with the given id.
func (q *Queue) Get(id string) (Item, error) {
	e, err := q.lookup(id)
	if err != nil {
		return Item{}, err
	}
	return e.snapshot(), nil
}

// Current returns the item on the display, if it is still displayed.
func (q *Queue) Current() (Item, bool) {
	q.dispMu.Lock()
	id := q.current
	q.dispMu.Unlock()
	if id == "" {
		return Item{}, false
	}
	it, err := q.Get(id)
	if err != nil || it.State != StateDisplayed {
		return Item{}, false
	}
	return it, true
}

// Stats returns the session counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Detected:  q.detected.Load(),
		Approved:  q.approved.Load(),
		Displayed: q.displayed.Load(),
		Dismissed: q.dismissed.Load(),
	}
}

// Len returns the number of items ever queued.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

func (q *Queue) first(state State) (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.entries {
		it := e.snapshot()
		if it.State == state && !it.Removed {
			return it, true
		}
	}
	return Item{}, false
}

// filter snapshots matching items. entries is append-only in Seq order, so
// the result is already sorted by arrival.
func (q *Queue) filter(keep func(Item) bool) []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []Item
	for _, e := range q.entries {
		if it := e.snapshot(); keep(it) {
			out = append(out, it)
		}
	}
	return out
}
