// Package queue implements the review queue: the state machine every
// detected reference and identified song passes through before it reaches
// the public display.
//
// Items move pending → approved → displayed, and any of those can be
// dismissed. Transitions on one item are serialized by that item's lock;
// different items transition concurrently. Items are never deleted: dismissed
// and removed items only leave the active lists and remain in History.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/display"
	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/scripture"
)

// DefaultAutoApproveThreshold is the confidence at which an arriving item
// skips manual review when auto-approval is on.
const DefaultAutoApproveThreshold = 0.95

var (
	// ErrNotFound is returned for an unknown item id.
	ErrNotFound = errors.New("queue: item not found")

	// ErrInvalidTransition is returned when the item's current state does
	// not allow the requested operation.
	ErrInvalidTransition = errors.New("queue: invalid transition")

	// ErrEmpty is returned by DisplayNext when no item is approved.
	ErrEmpty = errors.New("queue: no approved items")
)

// TextResolver looks up the body of a scripture reference.
type TextResolver interface {
	Text(ctx context.Context, ref scripture.Reference) (text, translation string, err error)
}

// TextResolverFunc adapts a function to [TextResolver].
type TextResolverFunc func(ctx context.Context, ref scripture.Reference) (string, string, error)

// Text calls f.
func (f TextResolverFunc) Text(ctx context.Context, ref scripture.Reference) (string, string, error) {
	return f(ctx, ref)
}

var _ detect.Sink = (*Queue)(nil)

// Option configures a [Queue].
type Option func(*Queue)

// WithResolver sets the verse text resolver used on first display.
func WithResolver(r TextResolver) Option {
	return func(q *Queue) { q.resolver = r }
}

// WithSurface sets the display surface. Default: [display.Discard].
func WithSurface(s display.Surface) Option {
	return func(q *Queue) { q.surface = s }
}

// WithAutoApprove turns auto-approval on or off. Default: off.
func WithAutoApprove(on bool) Option {
	return func(q *Queue) { q.autoApprove = on }
}

// WithAutoApproveThreshold sets the auto-approval confidence. Default: 0.95.
func WithAutoApproveThreshold(f float64) Option {
	return func(q *Queue) { q.threshold = f }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// entry is the mutable record behind an [Item]. Lock order is Queue.mu
// before entry.mu.
type entry struct {
	mu   sync.Mutex
	item Item
}

func (e *entry) snapshot() Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item.clone()
}

// Queue is the review queue. It is safe for concurrent use.
type Queue struct {
	resolver TextResolver
	surface  display.Surface
	metrics  *observe.Metrics
	log      *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	entries     []*entry
	byID        map[string]*entry
	seq         uint64
	autoApprove bool
	threshold   float64

	detected  atomic.Uint64
	approved  atomic.Uint64
	displayed atomic.Uint64
	dismissed atomic.Uint64

	// dispMu serializes display pushes so the surface sees them in the same
	// order current changes.
	dispMu  sync.Mutex
	current string
}

// New returns an empty [Queue].
func New(opts ...Option) *Queue {
	q := &Queue{
		surface:   display.Discard,
		metrics:   observe.DefaultMetrics(),
		log:       slog.Default(),
		now:       time.Now,
		byID:      make(map[string]*entry),
		threshold: DefaultAutoApproveThreshold,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// SetAutoApprove turns auto-approval on or off for future arrivals.
func (q *Queue) SetAutoApprove(on bool) {
	q.mu.Lock()
	q.autoApprove = on
	q.mu.Unlock()
}

// AutoApprove reports whether auto-approval is on.
func (q *Queue) AutoApprove() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.autoApprove
}

// SetAutoApproveThreshold changes the auto-approval confidence.
func (q *Queue) SetAutoApproveThreshold(f float64) {
	q.mu.Lock()
	q.threshold = f
	q.mu.Unlock()
}

// AutoApproveThreshold returns the auto-approval confidence.
func (q *Queue) AutoApproveThreshold() float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.threshold
}

// AddCandidates adds every candidate as a new item. It implements
// [detect.Sink].
func (q *Queue) AddCandidates(ctx context.Context, cands []scripture.Candidate) {
	for _, c := range cands {
		it := q.Add(c)
		q.log.InfoContext(ctx, "queued reference",
			"id", it.ID, "reference", it.Label(), "origin", c.Origin,
			"confidence", c.Confidence, "state", it.State)
	}
}

// Add queues a scripture candidate.
func (q *Queue) Add(c scripture.Candidate) Item {
	return q.add(Item{Kind: KindScripture, Candidate: &c}, c.Confidence)
}

// AddSong queues a song match.
func (q *Queue) AddSong(m library.Match) Item {
	return q.add(Item{Kind: KindSong, Song: &m}, m.Confidence)
}

func (q *Queue) add(it Item, confidence float64) Item {
	now := q.now()
	it.ID = uuid.NewString()
	it.State = StatePending
	it.CreatedAt = now

	e := &entry{}

	q.mu.Lock()
	q.seq++
	it.Seq = q.seq
	if q.autoApprove && confidence >= q.threshold {
		it.State = StateApproved
		it.ApprovedAt = now
	}
	e.item = it
	q.entries = append(q.entries, e)
	q.byID[it.ID] = e
	q.mu.Unlock()

	ctx := context.Background()
	q.detected.Add(1)
	q.metrics.RecordTransition(ctx, string(StatePending))
	if it.State == StateApproved {
		q.approved.Add(1)
		q.metrics.RecordTransition(ctx, string(StateApproved))
	}
	return it.clone()
}

func (q *Queue) lookup(id string) (*entry, error) {
	q.mu.RLock()
	e, ok := q.byID[id]
	q.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func invalid(it Item, op string) error {
	if it.Removed {
		return fmt.Errorf("%w: %s removed item %s", ErrInvalidTransition, op, it.ID)
	}
	return fmt.Errorf("%w: %s %s item %s", ErrInvalidTransition, op, it.State, it.ID)
}

// Approve moves a pending item to approved.
func (q *Queue) Approve(id string) (Item, error) {
	e, err := q.lookup(id)
	if err != nil {
		return Item{}, err
	}

	e.mu.Lock()
	if e.item.State != StatePending {
		defer e.mu.Unlock()
		return Item{}, invalid(e.item, "approve")
	}
	e.item.State = StateApproved
	e.item.ApprovedAt = q.now()
	it := e.item.clone()
	e.mu.Unlock()

	q.approved.Add(1)
	q.metrics.RecordTransition(context.Background(), string(StateApproved))
	return it, nil
}

// Dismiss moves a pending, approved or displayed item to dismissed. Dismissing
// the item on screen blanks the display.
func (q *Queue) Dismiss(id string) (Item, error) {
	e, err := q.lookup(id)
	if err != nil {
		return Item{}, err
	}

	e.mu.Lock()
	if e.item.State == StateDismissed || e.item.Removed {
		defer e.mu.Unlock()
		return Item{}, invalid(e.item, "dismiss")
	}
	e.item.State = StateDismissed
	it := e.item.clone()
	e.mu.Unlock()

	q.dismissed.Add(1)
	q.metrics.RecordTransition(context.Background(), string(StateDismissed))

	q.dispMu.Lock()
	defer q.dispMu.Unlock()
	if q.current == id {
		q.current = ""
		if err := q.surface.Push(context.Background(), display.Clear(q.now())); err != nil {
			q.log.Warn("display clear after dismiss failed", "id", id, "err", err)
		}
	}
	return it, nil
}

// Remove withdraws an approved item that was never displayed.
func (q *Queue) Remove(id string) (Item, error) {
	e, err := q.lookup(id)
	if err != nil {
		return Item{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.item.State != StateApproved || e.item.Removed {
		return Item{}, invalid(e.item, "remove")
	}
	e.item.Removed = true
	return e.item.clone(), nil
}

// Display shows an approved or displayed item. The verse text is resolved on
// first display. Exactly one payload is pushed per call; a failed push is
// logged, not retried, and does not undo the transition.
func (q *Queue) Display(ctx context.Context, id string) (Item, error) {
	e, err := q.lookup(id)
	if err != nil {
		return Item{}, err
	}

	e.mu.Lock()
	if !displayable(e.item) {
		defer e.mu.Unlock()
		return Item{}, invalid(e.item, "display")
	}
	needText := e.item.Kind == KindScripture && e.item.Text == "" && q.resolver != nil
	var ref scripture.Reference
	if needText {
		ref = e.item.Candidate.Reference
	}
	e.mu.Unlock()

	// Resolve outside the item lock so views never wait on a lookup.
	var text, translation string
	if needText {
		text, translation, err = q.resolver.Text(ctx, ref)
		if err != nil {
			q.log.WarnContext(ctx, "verse text unavailable", "reference", ref.String(), "err", err)
		}
	}

	e.mu.Lock()
	if !displayable(e.item) {
		defer e.mu.Unlock()
		return Item{}, invalid(e.item, "display")
	}
	if e.item.Text == "" && text != "" {
		e.item.Text, e.item.Translation = text, translation
	}
	first := e.item.State != StateDisplayed
	e.item.State = StateDisplayed
	e.item.DisplayedAt = q.now()
	it := e.item.clone()
	e.mu.Unlock()

	if first {
		q.displayed.Add(1)
		q.metrics.RecordTransition(ctx, string(StateDisplayed))
	}

	q.dispMu.Lock()
	defer q.dispMu.Unlock()
	// A dismiss may have landed since the transition above.
	if cur := e.snapshot(); cur.State != StateDisplayed {
		return Item{}, invalid(cur, "display")
	}
	q.current = it.ID
	if err := q.surface.Push(ctx, payload(it)); err != nil {
		q.log.WarnContext(ctx, "display push failed", "id", it.ID, "item", it.Label(), "err", err)
	}
	return it, nil
}

func displayable(it Item) bool {
	return !it.Removed && (it.State == StateApproved || it.State == StateDisplayed)
}

// DisplayNext displays the approved item with the lowest arrival sequence.
func (q *Queue) DisplayNext(ctx context.Context) (Item, error) {
	for {
		next, ok := q.first(StateApproved)
		if !ok {
			return Item{}, ErrEmpty
		}
		it, err := q.Display(ctx, next.ID)
		if errors.Is(err, ErrInvalidTransition) {
			// Lost a race with another transition on that item.
			continue
		}
		return it, err
	}
}

// ClearDisplay blanks the display surface.
func (q *Queue) ClearDisplay(ctx context.Context) error {
	q.dispMu.Lock()
	defer q.dispMu.Unlock()
	q.current = ""
	if err := q.surface.Push(ctx, display.Clear(q.now())); err != nil {
		return fmt.Errorf("queue: clear display: %w", err)
	}
	return nil
}

func payload(it Item) display.Payload {
	p := display.Payload{
		Type:   display.TypeDisplay,
		Kind:   string(it.Kind),
		ItemID: it.ID,
		At:     it.DisplayedAt,
	}
	switch {
	case it.Candidate != nil:
		p.Reference = it.Candidate.Display
		p.Text = it.Text
		p.Translation = it.Translation
	case it.Song != nil:
		s := it.Song.Song
		p.Song = &display.Song{Title: s.Title, Artist: s.Artist, Lyrics: s.Lyrics}
	}
	return p
}

// Reset drops every item and zeroes the counters for a new session. The
// display surface is left as it is.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.entries = nil
	q.byID = make(map[string]*entry)
	q.seq = 0
	q.detected.Store(0)
	q.approved.Store(0)
	q.displayed.Store(0)
	q.dismissed.Store(0)
	q.mu.Unlock()

	q.dispMu.Lock()
	q.current = ""
	q.dispMu.Unlock()
}
