package service

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the lifecycle of one tracked upload item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusUploading  ItemStatus = "uploading"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusError      ItemStatus = "error"
)

// ProgressItem is a snapshot of one item inside a session.
type ProgressItem struct {
	Identifier string
	Progress   float64
	Status     ItemStatus
	Error      string
}

// ProgressSnapshot is the aggregate view of a session at one moment.
type ProgressSnapshot struct {
	SessionID string
	Overall   float64
	Items     []ProgressItem
}

type trackedItem struct {
	progress float64
	status   ItemStatus
	errMsg   string
}

type trackedSession struct {
	items     map[string]*trackedItem
	order     []string
	updatedAt time.Time
}

// ProgressTracker keeps per-session upload progress in memory. Progress per
// item only moves forward, and an errored item keeps its last value.
type ProgressTracker struct {
	mu       sync.RWMutex
	sessions map[string]*trackedSession
	ttl      time.Duration
}

// NewProgressTracker constructs a tracker. Sessions older than ttl are
// dropped lazily on write.
func NewProgressTracker(ttl time.Duration) *ProgressTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressTracker{
		sessions: make(map[string]*trackedSession),
		ttl:      ttl,
	}
}

// StartSession registers a new session with the given item identifiers,
// each starting at zero in pending state. Returns the session id.
func (t *ProgressTracker) StartSession(identifiers []string) string {
	id := uuid.NewString()
	session := &trackedSession{
		items:     make(map[string]*trackedItem, len(identifiers)),
		order:     make([]string, 0, len(identifiers)),
		updatedAt: time.Now(),
	}
	for _, identifier := range identifiers {
		if _, ok := session.items[identifier]; ok {
			continue
		}
		session.items[identifier] = &trackedItem{status: ItemStatusPending}
		session.order = append(session.order, identifier)
	}
	t.mu.Lock()
	t.evictStale()
	t.sessions[id] = session
	t.mu.Unlock()
	return id
}

// Rename rebinds an item to a new identifier, keeping its position and state.
// Archive extraction uses it when an entry's reserved filename differs from
// the name registered at session start.
func (t *ProgressTracker) Rename(sessionID, identifier, newIdentifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok || identifier == newIdentifier {
		return
	}
	item, ok := session.items[identifier]
	if !ok {
		return
	}
	if _, exists := session.items[newIdentifier]; exists {
		return
	}
	delete(session.items, identifier)
	session.items[newIdentifier] = item
	for i, id := range session.order {
		if id == identifier {
			session.order[i] = newIdentifier
			break
		}
	}
	session.updatedAt = time.Now()
}

// Update moves one item's progress. Values below the current progress are
// ignored, and items in a terminal state never change again.
func (t *ProgressTracker) Update(sessionID, identifier string, progress float64, status ItemStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	item, ok := session.items[identifier]
	if !ok {
		return
	}
	if item.status == ItemStatusError || item.status == ItemStatusCompleted {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > item.progress {
		item.progress = progress
	}
	if status != "" {
		item.status = status
	}
	if status == ItemStatusCompleted {
		item.progress = 100
	}
	session.updatedAt = time.Now()
}

// Fail marks an item as errored, freezing its progress where it was.
func (t *ProgressTracker) Fail(sessionID, identifier string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	item, ok := session.items[identifier]
	if !ok {
		return
	}
	if item.status == ItemStatusCompleted {
		return
	}
	item.status = ItemStatusError
	if err != nil {
		item.errMsg = err.Error()
	}
	session.updatedAt = time.Now()
}

// Snapshot returns the current state of a session. Overall progress is the
// arithmetic mean across items; an empty or unknown session reads as zero.
func (t *ProgressTracker) Snapshot(sessionID string) ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := ProgressSnapshot{SessionID: sessionID, Items: []ProgressItem{}}
	session, ok := t.sessions[sessionID]
	if !ok || len(session.items) == 0 {
		return snapshot
	}
	order := session.order
	if len(order) != len(session.items) {
		order = make([]string, 0, len(session.items))
		for identifier := range session.items {
			order = append(order, identifier)
		}
		sort.Strings(order)
	}
	var sum float64
	for _, identifier := range order {
		item := session.items[identifier]
		snapshot.Items = append(snapshot.Items, ProgressItem{
			Identifier: identifier,
			Progress:   item.progress,
			Status:     item.status,
			Error:      item.errMsg,
		})
		sum += item.progress
	}
	snapshot.Overall = sum / float64(len(order))
	return snapshot
}

// EndSession drops the session once a caller is done polling it.
func (t *ProgressTracker) EndSession(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}

func (t *ProgressTracker) evictStale() {
	cutoff := time.Now().Add(-t.ttl)
	for id, session := range t.sessions {
		if session.updatedAt.Before(cutoff) {
			delete(t.sessions, id)
		}
	}
}
