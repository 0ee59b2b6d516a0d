// Package redis keeps the shared chat state in Redis so several API replicas
// observe the same message log, mode flag and alert timestamp.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

// Alert times are stored as Unix microseconds: Lua numbers are doubles and
// nanoseconds would lose precision in the comparison.
var raiseAlertScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (not cur) or tonumber(ARGV[1]) > tonumber(cur) then
  redis.call('SET', KEYS[1], ARGV[1])
  return ARGV[1]
end
return cur
`)

type Store struct {
	client *goredis.Client
	prefix string
	start  time.Time
}

// NewStore wraps a client. start is reported as the last alert time until
// the first alert is raised.
func NewStore(client *goredis.Client, prefix string, start time.Time) *Store {
	return &Store{client: client, prefix: prefix, start: start}
}

// Open builds a client from options and checks the connection.
func Open(ctx context.Context, opts *goredis.Options, prefix string, start time.Time) (*Store, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewStore(client, prefix, start), nil
}

func (s *Store) key(name string) string { return s.prefix + name }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("redis AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context) ([]*domain.Message, error) {
	raw, err := s.client.LRange(ctx, s.key("messages"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListMessages: %w", err)
	}

	out := make([]*domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// ─────────────────────────────────────────
// ModeStore implementation
// ─────────────────────────────────────────

func (s *Store) SetMode(ctx context.Context, mode domain.Mode) error {
	v := "0"
	if mode.Agent {
		v = "1"
	}
	if err := s.client.Set(ctx, s.key("mode"), v, 0).Err(); err != nil {
		return fmt.Errorf("redis SetMode: %w", err)
	}
	return nil
}

func (s *Store) GetMode(ctx context.Context) (domain.Mode, error) {
	v, err := s.client.Get(ctx, s.key("mode")).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Mode{}, nil
	}
	if err != nil {
		return domain.Mode{}, fmt.Errorf("redis GetMode: %w", err)
	}
	return domain.Mode{Agent: v == "1"}, nil
}

// ─────────────────────────────────────────
// AlertStore implementation
// ─────────────────────────────────────────

func (s *Store) RaiseAlert(ctx context.Context, at time.Time) (time.Time, error) {
	res, err := raiseAlertScript.Run(ctx, s.client, []string{s.key("last_alert")}, at.UnixMicro()).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis RaiseAlert: %w", err)
	}
	return parseMicros(res)
}

func (s *Store) LastAlert(ctx context.Context) (time.Time, error) {
	v, err := s.client.Get(ctx, s.key("last_alert")).Result()
	if errors.Is(err, goredis.Nil) {
		return s.start, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis LastAlert: %w", err)
	}
	t, err := parseMicros(v)
	if err != nil {
		return time.Time{}, err
	}
	if t.Before(s.start) {
		return s.start, nil
	}
	return t, nil
}

func parseMicros(v any) (time.Time, error) {
	var n int64
	switch x := v.(type) {
	case string:
		p, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse alert time %q: %w", x, err)
		}
		n = p
	case int64:
		n = x
	default:
		return time.Time{}, fmt.Errorf("unexpected alert time type %T", v)
	}
	return time.UnixMicro(n).UTC(), nil
}

// ─────────────────────────────────────────
// SummaryStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendSummary(ctx context.Context, sum *domain.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("summaries"), data).Err(); err != nil {
		return fmt.Errorf("redis AppendSummary: %w", err)
	}
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, limit int) ([]*domain.Summary, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, s.key("summaries"), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListSummaries: %w", err)
	}

	out := make([]*domain.Summary, 0, len(raw))
	for _, r := range raw {
		var sum domain.Summary
		if err := json.Unmarshal([]byte(r), &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, &sum)
	}
	return out, nil
}
