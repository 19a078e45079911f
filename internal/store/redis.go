package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
)

const (
	DefaultTTL         = 60 * time.Minute
	DefaultMaxAttempts = 8
)

func keySession(id string) string { return "cn:session:" + strings.TrimSpace(id) }
func keyIndex() string            { return "cn:sessions" }

type RedisStore struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxAttempts uint
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*RedisStore)

func WithTTL(d time.Duration) Option {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = uint(n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *RedisStore) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		rdb:         rdb,
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return retry(ctx, s.maxAttempts, "store get", func() (*domain.Session, error) {
		raw, err := s.rdb.Get(ctx, keySession(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, backoff.Permanent(ErrSessionNotFound)
		}
		if err != nil {
			return nil, err
		}
		sess, err := decode(raw)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return sess, nil
	})
}

func (s *RedisStore) Put(ctx context.Context, sess *domain.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return apperr.New(apperr.InvalidArgument, "session id is required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode session", err)
	}
	_, err = retry(ctx, s.maxAttempts, "store put", func() (struct{}, error) {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keySession(sess.ID), raw, s.ttl)
			pipe.SAdd(ctx, keyIndex(), sess.ID)
			return nil
		})
		return struct{}{}, err
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := retry(ctx, s.maxAttempts, "store delete", func() (struct{}, error) {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keySession(id))
			pipe.SRem(ctx, keyIndex(), id)
			return nil
		})
		return struct{}{}, err
	})
	return err
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	return retry(ctx, s.maxAttempts, "store exists", func() (bool, error) {
		n, err := s.rdb.Exists(ctx, keySession(id)).Result()
		return n > 0, err
	})
}

// List loads every indexed session and prunes ids whose key has expired.
func (s *RedisStore) List(ctx context.Context) ([]*domain.Session, error) {
	ids, err := retry(ctx, s.maxAttempts, "store list", func() ([]string, error) {
		return s.rdb.SMembers(ctx, keyIndex()).Result()
	})
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keySession(id)
	}
	vals, err := retry(ctx, s.maxAttempts, "store list", func() ([]any, error) {
		return s.rdb.MGet(ctx, keys...).Result()
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Session, 0, len(ids))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decode([]byte(raw))
		if err != nil {
			s.logger.Warn("store_list_decode_error", zap.String("session_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, keyIndex(), stale...).Err(); err != nil {
			s.logger.Warn("store_index_prune_error", zap.Int("count", len(stale)), zap.Error(err))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// mutationError carries a Mutation's own error through the retry loop untouched.
type mutationError struct{ err error }

func (e *mutationError) Error() string { return e.err.Error() }
func (e *mutationError) Unwrap() error { return e.err }

// Update runs fn under WATCH and commits with MULTI/EXEC; a concurrent write
// aborts EXEC and the whole read-modify-write is retried.
func (s *RedisStore) Update(ctx context.Context, id string, fn Mutation) (*domain.Session, error) {
	key := keySession(id)
	attempt := 0
	out, err := retry(ctx, s.maxAttempts, "store update", func() (*domain.Session, error) {
		attempt++
		var result *domain.Session
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return backoff.Permanent(ErrSessionNotFound)
			}
			if err != nil {
				return err
			}
			cur, err := decode(raw)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := fn(cur); err != nil {
				if errors.Is(err, ErrNoChange) {
					result = cur
					return nil
				}
				return backoff.Permanent(&mutationError{err: err})
			}
			cur.Touch(s.now())
			payload, err := json.Marshal(cur)
			if err != nil {
				return backoff.Permanent(apperr.Wrap(apperr.Internal, "encode session", err))
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				pipe.SAdd(ctx, keyIndex(), id)
				return nil
			})
			if err != nil {
				return err
			}
			result = cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("store_update_conflict", zap.String("session_id", id), zap.Int("attempt", attempt))
		}
		return result, err
	})
	if err != nil {
		var me *mutationError
		if errors.As(err, &me) {
			return nil, me.err
		}
		return nil, err
	}
	return out, nil
}

func decode(raw []byte) (*domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode session", err)
	}
	return &sess, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.RandomizationFactor = 0.5
	return b
}

// retry runs op with exponential backoff and maps the final failure onto apperr kinds.
func retry[T any](ctx context.Context, attempts uint, what string, op func() (T, error)) (T, error) {
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(attempts),
	)
	if err == nil {
		return out, nil
	}
	var zero T
	var me *mutationError
	var ae *apperr.Error
	switch {
	case errors.As(err, &me):
		return zero, err
	case errors.Is(err, redis.TxFailedErr):
		return zero, apperr.Wrap(apperr.Conflict, ErrContention.Message, err)
	case errors.As(err, &ae):
		return zero, err
	default:
		return zero, apperr.Wrap(apperr.Transient, what, err)
	}
}
