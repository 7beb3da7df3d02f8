// Package redis provides a Redis-backed Store using go-redis. Entities are
// stored as JSON values; held reservations are additionally indexed in a
// sorted set scored by expiry so the sweep worker never scans the keyspace.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/project"
	humanizerstore "github.com/veritext/humanizer/store"
)

// compile-time interface check
var _ humanizerstore.Store = (*Store)(nil)

const (
	keyAccount      = "hum:acct:"      // + userID -> JSON account
	keyReservation  = "hum:rsv:"       // + reservation ID -> JSON reservation
	keyHeldIndex    = "hum:rsv:held"   // zset: reservation ID scored by expiry unix
	keyUsage        = "hum:usage:"     // + userID -> list of JSON events, newest first
	keyProject      = "hum:proj:"      // + project ID -> JSON project
	keyProjectIndex = "hum:proj:user:" // + userID -> set of project IDs
)

// Store is a Redis-backed implementation of the unified store interface.
type Store struct {
	client *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Redis store from connection options.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{client: client}
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Account Store implementation

func (s *Store) CreateAccount(ctx context.Context, a *credit.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, keyAccount+a.UserID, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return humanizer.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*credit.Account, error) {
	data, err := s.client.Get(ctx, keyAccount+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, humanizer.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	var a credit.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *credit.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	set, err := s.client.SetXX(ctx, keyAccount+a.UserID, data, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return humanizer.ErrAccountNotFound
	}
	return nil
}

// Reservation Store implementation

func (s *Store) CreateReservation(ctx context.Context, r *credit.Reservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := keyReservation + r.ID.String()

	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return humanizer.ErrAlreadyExists
	}

	return s.client.ZAdd(ctx, keyHeldIndex, redis.Z{
		Score:  float64(r.ExpiresAt.UnixMilli()),
		Member: r.ID.String(),
	}).Err()
}

func (s *Store) GetReservation(ctx context.Context, resID id.ReservationID) (*credit.Reservation, error) {
	data, err := s.client.Get(ctx, keyReservation+resID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, humanizer.ErrUnknownReservation
	}
	if err != nil {
		return nil, err
	}
	var r credit.Reservation
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r *credit.Reservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	set, err := s.client.SetXX(ctx, keyReservation+r.ID.String(), data, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return humanizer.ErrUnknownReservation
	}

	// Terminal reservations leave the sweep index.
	if r.State.Terminal() {
		return s.client.ZRem(ctx, keyHeldIndex, r.ID.String()).Err()
	}
	return nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, before time.Time) ([]*credit.Reservation, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyHeldIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*credit.Reservation, 0, len(ids))
	for _, rid := range ids {
		data, err := s.client.Get(ctx, keyReservation+rid).Bytes()
		if errors.Is(err, redis.Nil) {
			// Dangling index entry; drop it.
			_ = s.client.ZRem(ctx, keyHeldIndex, rid).Err() //nolint:errcheck // best-effort cleanup
			continue
		}
		if err != nil {
			return nil, err
		}
		var r credit.Reservation
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		if r.State != credit.StateHeld {
			continue
		}
		result = append(result, &r)
	}
	return result, nil
}

// Usage Store implementation

func (s *Store) IngestUsage(ctx context.Context, events []*credit.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.LPush(ctx, keyUsage+e.UserID, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) QueryUsage(ctx context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error) {
	raw, err := s.client.LRange(ctx, keyUsage+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	matched := make([]*credit.UsageEvent, 0)
	for _, item := range raw {
		var e credit.UsageEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, err
		}
		if opts.Level != "" && e.Level != opts.Level {
			continue
		}
		if !opts.Start.IsZero() && e.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && e.Timestamp.After(opts.End) {
			continue
		}
		matched = append(matched, &e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error) {
	raw, err := s.client.LRange(ctx, keyUsage+userID, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, item := range raw {
		var e credit.UsageEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return 0, err
		}
		if e.Timestamp.After(since) {
			total += e.CreditsCharged
		}
	}
	return total, nil
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	var purged int64

	iter := s.client.Scan(ctx, 0, keyUsage+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return purged, err
		}

		kept := make([]any, 0, len(raw))
		for _, item := range raw {
			var e credit.UsageEvent
			if err := json.Unmarshal([]byte(item), &e); err != nil {
				return purged, err
			}
			if e.Timestamp.Before(before) {
				purged++
			} else {
				kept = append(kept, item)
			}
		}
		if int64(len(raw)-len(kept)) == 0 {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		if len(kept) > 0 {
			pipe.RPush(ctx, key, kept...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, err
		}
	}
	return purged, iter.Err()
}

// Project Store implementation

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, keyProject+p.ID.String(), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return humanizer.ErrAlreadyExists
	}
	return s.client.SAdd(ctx, keyProjectIndex+p.UserID, p.ID.String()).Err()
}

func (s *Store) GetProject(ctx context.Context, projID id.ProjectID) (*project.Project, error) {
	data, err := s.client.Get(ctx, keyProject+projID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, humanizer.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	var p project.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, userID string, opts project.ListOpts) ([]*project.Project, error) {
	ids, err := s.client.SMembers(ctx, keyProjectIndex+userID).Result()
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(opts.Search)
	matched := make([]*project.Project, 0, len(ids))
	for _, pid := range ids {
		data, err := s.client.Get(ctx, keyProject+pid).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p project.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if opts.FavoritesOnly && !p.Favorite {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Excerpt), search) {
			continue
		}
		matched = append(matched, &p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	set, err := s.client.SetXX(ctx, keyProject+p.ID.String(), data, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return humanizer.ErrProjectNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, projID id.ProjectID) error {
	p, err := s.GetProject(ctx, projID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyProject+projID.String())
	pipe.SRem(ctx, keyProjectIndex+p.UserID, projID.String())
	_, err = pipe.Exec(ctx)
	return err
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No schema to migrate
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
