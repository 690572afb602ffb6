package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"khodkquiz/internal/app"

	"github.com/redis/go-redis/v9"
)

// HubStore keeps leaderboard hubs in process and advertises in Redis which
// quizzes have live viewers on this instance, under quiz:live:{quizID}.
// Markers expire after ttl unless refreshed by a subscribe or by KeepAlive.
type HubStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger

	mu   sync.RWMutex
	hubs map[string]*app.Hub
}

func NewHubStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *HubStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HubStore{
		client: client,
		ttl:    ttl,
		log:    logger,
		hubs:   make(map[string]*app.Hub),
	}
}

// GetOrCreate is called once per subscriber, so it always refreshes the marker.
func (s *HubStore) GetOrCreate(quizID string) *app.Hub {
	s.mu.Lock()
	hub, ok := s.hubs[quizID]
	if !ok {
		hub = app.NewHub(quizID)
		s.hubs[quizID] = hub
	}
	s.mu.Unlock()

	s.mark(context.Background(), quizID)
	return hub
}

func (s *HubStore) Get(quizID string) (*app.Hub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hub, ok := s.hubs[quizID]
	return hub, ok
}

func (s *HubStore) DeleteIfEmpty(hub *app.Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.hubs[hub.ID()]
	if !ok || current != hub || !hub.IsEmpty() {
		return
	}
	delete(s.hubs, hub.ID())
	if err := s.client.Del(context.Background(), liveKey(hub.ID())).Err(); err != nil {
		s.log.Warn("clear live marker", "quiz_id", hub.ID(), "err", err)
	}
}

// KeepAlive refreshes the markers of all registered hubs every half ttl until ctx is done.
func (s *HubStore) KeepAlive(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *HubStore) refreshAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.hubs))
	for id := range s.hubs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.Set(ctx, liveKey(id), "1", s.ttl)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("refresh live markers", "count", len(ids), "err", err)
	}
}

func (s *HubStore) mark(ctx context.Context, quizID string) {
	if err := s.client.Set(ctx, liveKey(quizID), "1", s.ttl).Err(); err != nil {
		s.log.Warn("set live marker", "quiz_id", quizID, "err", err)
	}
}

func liveKey(quizID string) string {
	return "quiz:live:" + quizID
}
