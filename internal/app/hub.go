package app

import (
	"sync"
	"time"

	"khodkquiz/internal/domain"
)

// Hub fans out leaderboard snapshots of one quiz to live subscribers.
type Hub struct {
	id          string
	now         func() time.Time
	mu          sync.RWMutex
	entries     []domain.LeaderboardEntry
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewHub is exported for infrastructure layers that need to seed hubs.
func NewHub(id string) *Hub {
	return NewHubWithClock(id, time.Now)
}

// NewHubWithClock is test-only for deterministic timestamps.
func NewHubWithClock(id string, now func() time.Time) *Hub {
	return &Hub{
		id:          id,
		now:         now,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// IsEmpty reports whether the hub has no subscribers.
func (h *Hub) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers) == 0
}

// ID returns the quiz the hub streams.
func (h *Hub) ID() string {
	return h.id
}

func (h *Hub) publish(entries []domain.LeaderboardEntry) domain.Leaderboard {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]domain.LeaderboardEntry(nil), entries...)
	return h.broadcastLocked()
}

func (h *Hub) subscribe() (<-chan domain.Leaderboard, func() bool) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	ch <- h.snapshotLocked()
	h.mu.Unlock()

	cancel := func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		return len(h.subscribers) == 0
	}
	return ch, cancel
}

func (h *Hub) broadcastLocked() domain.Leaderboard {
	lb := h.snapshotLocked()
	for ch := range h.subscribers {
		select {
		case ch <- lb:
		default:
			// Slow reader: replace its oldest snapshot with the newest.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return lb
}

func (h *Hub) snapshotLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, len(h.entries))
	copy(entries, h.entries)
	domain.SortLeaderboard(entries)
	return domain.Leaderboard{
		QuizID:    h.id,
		Entries:   entries,
		UpdatedAt: h.now(),
	}
}
