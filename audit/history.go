package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Filter narrows a [History] query. Zero-value fields do not filter.
type Filter struct {
	UserID string
	Types  []string
	Since  time.Time
	Limit  int
}

func (f Filter) matches(e Event) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// History keeps a bounded window of recent events for inspection.
// Query returns newest first.
type History interface {
	Append(ctx context.Context, event Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

// HistorySink adapts a [History] into a [Sink]. Append errors are
// swallowed: audit recording must never disturb the caller.
type HistorySink struct {
	history History
}

func NewHistorySink(h History) *HistorySink {
	return &HistorySink{history: h}
}

func (s *HistorySink) Emit(ctx context.Context, event Event) {
	if s == nil || s.history == nil {
		return
	}
	_ = s.history.Append(ctx, event)
}

// Memory is an in-process [History]: a fixed-size ring, oldest overwritten.
type Memory struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool
}

// NewMemory builds a ring holding the most recent size events.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{events: make([]Event, size)}
}

func (m *Memory) Append(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = event
	m.next++
	if m.next == len(m.events) {
		m.next = 0
		m.filled = true
	}
	return nil
}

func (m *Memory) Query(_ context.Context, filter Filter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.next
	if m.filled {
		stored = len(m.events)
	}

	var out []Event
	for i := 0; i < stored; i++ {
		// Walk backwards from the most recent slot.
		idx := (m.next - 1 - i + len(m.events)) % len(m.events)
		e := m.events[idx]
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Redis is a [History] backed by a capped Redis list, shared across
// instances. Events are stored as JSON, newest at the head.
type Redis struct {
	redis redis.UniversalClient
	key   string
	size  int64
}

// NewRedis builds a Redis history capped at size events under the given
// key prefix (default "ac").
func NewRedis(client redis.UniversalClient, prefix string, size int) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if prefix == "" {
		prefix = "ac"
	}
	if size <= 0 {
		size = 1
	}
	return &Redis{redis: client, key: prefix + ":audit", size: int64(size)}, nil
}

func (r *Redis) Append(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, 0, r.size-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit history append: %w", err)
	}
	return nil
}

func (r *Redis) Query(ctx context.Context, filter Filter) ([]Event, error) {
	raw, err := r.redis.LRange(ctx, r.key, 0, r.size-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit history query: %w", err)
	}

	var out []Event
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
