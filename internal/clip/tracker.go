package clip

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	"":                   {StatusAssembling, StatusFinalized, StatusSubmitted},
	StatusAssembling:     {StatusFinalized},
	StatusFinalized:      {StatusSubmitted},
	StatusSubmitted:      {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:      {StatusDecidedAlert, StatusDecidedNoAlert, StatusFailed},
	StatusDecidedAlert:   {StatusCleaned},
	StatusDecidedNoAlert: {StatusCleaned},
	StatusFailed:         {StatusCleaned},
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Record is a point-in-time copy of a tracked clip.
type Record struct {
	ClipID  string       `json:"clip_id"`
	Status  Status       `json:"status"`
	History []Transition `json:"history"`
}

// Tracker remembers the lifecycle of recent clips. The oldest entries are
// evicted once the cache is full.
type Tracker struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Record]
	now   func() time.Time
}

func NewTracker(size int) *Tracker {
	c, _ := lru.New[string, *Record](size)
	return &Tracker{cache: c, now: time.Now}
}

// Advance moves the clip to the given status if the transition is legal.
func (t *Tracker) Advance(id string, to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.cache.Get(id)
	var from Status
	if ok {
		from = rec.Status
	}
	if !allowed(from, to) {
		return fmt.Errorf("%w: %s %q -> %q", ErrInvalidTransition, id, from, to)
	}
	if !ok {
		rec = &Record{ClipID: id}
		t.cache.Add(id, rec)
	}
	rec.Status = to
	rec.History = append(rec.History, Transition{Status: to, At: t.now()})
	return nil
}

func (t *Tracker) Status(id string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.cache.Peek(id)
	if !ok {
		return "", false
	}
	return rec.Status, true
}

func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.cache.Peek(id)
	if !ok {
		return Record{}, false
	}
	out := *rec
	out.History = append([]Transition(nil), rec.History...)
	return out, true
}

// Forget drops a clip that was rejected before it was accepted.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(id)
}
