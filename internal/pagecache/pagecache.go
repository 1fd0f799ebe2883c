// Package pagecache caches rendered song payloads and supports on-demand
// revalidation of one song or the whole library.
//
// Fills are conditional. A lookup returns a Ticket holding the invalidation
// generations it observed; a fill made with a ticket that no longer matches
// is dropped, so a reader that loaded a row before a concurrent write cannot
// put the old row back after the writer invalidated it.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/metrics"
	"github.com/and161185/songbook/internal/model"
)

// Key layout.
const (
	Prefix   = "songbook:"
	listKey  = Prefix + "list"
	songKey  = Prefix + "song:"
	genKey   = Prefix + "gen:"
	epochKey = genKey + "epoch"
)

// DefaultTTL is the regeneration period.
const DefaultTTL = time.Hour

// genTTL bounds how long a per-key generation outlives its last invalidation.
const genTTL = 24 * time.Hour

var errStaleFill = errors.New("stale fill")

// Ticket is the invalidation state seen by a lookup. The zero Ticket is what
// a cache that has never been invalidated reports.
type Ticket struct {
	epoch int64
	gen   int64
}

// Cache stores song detail and list payloads.
type Cache interface {
	// Song returns the cached song, or a Ticket to fill it with on a miss.
	Song(ctx context.Context, id uuid.UUID) (model.Song, Ticket, bool, error)
	// PutSong stores s unless the entry was invalidated after t was taken.
	PutSong(ctx context.Context, s model.Song, t Ticket) error
	// List returns the cached library, or a Ticket to fill it with on a miss.
	List(ctx context.Context) ([]model.Song, Ticket, bool, error)
	// PutList stores songs unless the list was invalidated after t was taken.
	PutList(ctx context.Context, songs []model.Song, t Ticket) error
	// Invalidate drops the song's entry and the list.
	Invalidate(ctx context.Context, id uuid.UUID) error
	// InvalidateAll drops every cached payload.
	InvalidateAll(ctx context.Context) error
}

// Redis is a Cache backed by Redis with msgpack-encoded values.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func genKeyFor(key string) string {
	return genKey + strings.TrimPrefix(key, Prefix)
}

// Song looks up a single song.
func (c *Redis) Song(ctx context.Context, id uuid.UUID) (model.Song, Ticket, bool, error) {
	var s model.Song
	t, ok, err := c.get(ctx, "song", songKey+id.String(), &s)
	return s, t, ok, err
}

// PutSong fills the song entry.
func (c *Redis) PutSong(ctx context.Context, s model.Song, t Ticket) error {
	return c.set(ctx, songKey+s.ID.String(), s, t)
}

// List looks up the whole library.
func (c *Redis) List(ctx context.Context) ([]model.Song, Ticket, bool, error) {
	var songs []model.Song
	t, ok, err := c.get(ctx, "list", listKey, &songs)
	return songs, t, ok, err
}

// PutList fills the library entry.
func (c *Redis) PutList(ctx context.Context, songs []model.Song, t Ticket) error {
	return c.set(ctx, listKey, songs, t)
}

// Invalidate bumps the generations of the song and the list and deletes both
// payloads in one transaction.
func (c *Redis) Invalidate(ctx context.Context, id uuid.UUID) error {
	sk := songKey + id.String()
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, g := range []string{genKeyFor(sk), genKeyFor(listKey)} {
			p.Incr(ctx, g)
			p.Expire(ctx, g, genTTL)
		}
		p.Del(ctx, sk, listKey)
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("del").Inc()
		return fmt.Errorf("invalidate %s: %w", id, err)
	}
	return nil
}

// InvalidateAll bumps the global epoch, which voids every outstanding
// Ticket, then deletes all payloads.
func (c *Redis) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, epochKey).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("del").Inc()
		return fmt.Errorf("invalidate all: %w", err)
	}

	iter := c.client.Scan(ctx, 0, songKey+"*", 100).Iterator()
	batch := []string{listKey}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("invalidate all: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("scan").Inc()
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("invalidate all: %w", err)
		}
	}
	return nil
}

func counter(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func ticketOf(vals []any) Ticket {
	return Ticket{epoch: counter(vals[0]), gen: counter(vals[1])}
}

func (c *Redis) get(ctx context.Context, kind, key string, dst any) (Ticket, bool, error) {
	pipe := c.client.Pipeline()
	gens := pipe.MGet(ctx, epochKey, genKeyFor(key))
	val := pipe.Get(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return Ticket{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	t := ticketOf(gens.Val())

	data, err := val.Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return t, false, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return Ticket{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, dst); err != nil {
		// A payload we cannot decode is treated as a miss and dropped.
		c.log.Warn("drop undecodable cache entry", zap.String("key", key), zap.Error(err))
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		_ = c.client.Del(ctx, key).Err()
		return t, false, nil
	}
	metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return t, true, nil
}

// set writes key only if its generation and the epoch still match t. The
// generation keys are watched so an Invalidate racing the write aborts it.
func (c *Redis) set(ctx context.Context, key string, v any, t Ticket) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	gk := genKeyFor(key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, epochKey, gk).Result()
		if err != nil {
			return err
		}
		if ticketOf(vals) != t {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, epochKey, gk)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		metrics.CacheLookups.WithLabelValues("fill", "stale").Inc()
		c.log.Debug("skip stale cache fill", zap.String("key", key))
		return nil
	default:
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
}

// Nop never stores anything. Used when no Redis address is configured.
type Nop struct{}

// Song always misses.
func (Nop) Song(context.Context, uuid.UUID) (model.Song, Ticket, bool, error) {
	return model.Song{}, Ticket{}, false, nil
}

// PutSong discards s.
func (Nop) PutSong(context.Context, model.Song, Ticket) error { return nil }

// List always misses.
func (Nop) List(context.Context) ([]model.Song, Ticket, bool, error) {
	return nil, Ticket{}, false, nil
}

// PutList discards songs.
func (Nop) PutList(context.Context, []model.Song, Ticket) error { return nil }

// Invalidate does nothing.
func (Nop) Invalidate(context.Context, uuid.UUID) error { return nil }

// InvalidateAll does nothing.
func (Nop) InvalidateAll(context.Context) error { return nil }
