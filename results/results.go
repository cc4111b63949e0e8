// Package results publishes a record of every finished game session to an
// outbound feed. Nothing is read back.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Score is one player's final score.
type Score struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// Record describes a closed session.
type Record struct {
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	Reason     string    `json:"reason"`
	Winners    []string  `json:"winners"`
	TopScore   int       `json:"top_score"`
	Scores     []Score   `json:"scores"`
	FinishedAt time.Time `json:"finished_at"`
}

// Sink receives finished-game records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

type nopSink struct{}

// NewNopSink returns a Sink that discards every record.
func NewNopSink() Sink {
	return nopSink{}
}

func (nopSink) Publish(context.Context, Record) error { return nil }
func (nopSink) Close() error                          { return nil }

// listPusher is the part of a redis client RedisSink needs.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisSink appends JSON-encoded records to a Redis list.
type RedisSink struct {
	client  listPusher
	key     string
	timeout time.Duration
}

// NewRedisSink creates a sink that pushes to key on the Redis server at addr.
//
// Parameters:
//   - addr: Redis address, host:port
//   - key: List key records are appended to
//   - timeout: Upper bound on a single publish
//
// Returns:
//   - A new RedisSink; the connection is established lazily on first publish
func NewRedisSink(addr, key string, timeout time.Duration) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		WriteTimeout: timeout,
		ReadTimeout:  timeout,
		MaxRetries:   1,
	})

	return &RedisSink{client: client, key: key, timeout: timeout}
}

// Publish RPUSHes rec as JSON.
func (s *RedisSink) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", s.key, err)
	}

	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
