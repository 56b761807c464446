package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dprasetyo/userpulse/internal/common/redis"
	"github.com/dprasetyo/userpulse/internal/deadletter"
)

type Service interface {
	GetUserStats(ctx context.Context, userID string) (*StatsResponse, error)
	GetUserProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]*EventSummary, error)
	GetTopSpenders(ctx context.Context, limit int) ([]*StatsResponse, error)
	GetDeadLetterSummary(ctx context.Context) (*deadletter.Summary, error)
}

// Cache TTLs are short: aggregates move with every consumed event, so the
// cache only absorbs read bursts, it is not a source of truth.
const (
	statsCacheTTL       = 30 * time.Second
	topSpendersCacheTTL = 5 * time.Minute
)

type service struct {
	repo    Repository
	dlqRepo *deadletter.Repository
	redis   *redis.Client
}

// NewService wires the read side. The redis client is optional; when nil
// every read goes straight to the database.
func NewService(repo Repository, dlqRepo *deadletter.Repository, redisClient *redis.Client) Service {
	return &service{
		repo:    repo,
		dlqRepo: dlqRepo,
		redis:   redisClient,
	}
}

// GetUserStats retrieves one user's aggregates with caching.
func (s *service) GetUserStats(ctx context.Context, userID string) (*StatsResponse, error) {
	cacheKey := fmt.Sprintf("stats:user:%s", userID)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var stats StatsResponse
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := s.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, nil
	}

	if s.redis != nil {
		if data, err := json.Marshal(stats); err == nil {
			s.redis.Set(ctx, cacheKey, data, statsCacheTTL)
		}
	}

	return stats, nil
}

// GetUserProfile retrieves a user's profile joined with their stats.
// Profiles are not cached; they carry personal fields and are read rarely.
func (s *service) GetUserProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	return s.repo.GetUserProfile(ctx, userID)
}

// GetRecentEvents lists a user's latest events.
func (s *service) GetRecentEvents(ctx context.Context, userID string, limit int) ([]*EventSummary, error) {
	return s.repo.GetRecentEvents(ctx, userID, limit)
}

// GetTopSpenders retrieves the spend leaderboard with caching.
func (s *service) GetTopSpenders(ctx context.Context, limit int) ([]*StatsResponse, error) {
	cacheKey := fmt.Sprintf("stats:top:%d", limit)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var results []*StatsResponse
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				return results, nil
			}
		}
	}

	results, err := s.repo.GetTopSpenders(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(results); err == nil {
			s.redis.Set(ctx, cacheKey, data, topSpendersCacheTTL)
		}
	}

	return results, nil
}

// GetDeadLetterSummary reports the quarantine state for operators.
func (s *service) GetDeadLetterSummary(ctx context.Context) (*deadletter.Summary, error) {
	return s.dlqRepo.GetSummary(ctx, 10)
}
