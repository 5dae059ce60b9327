package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NameResolver looks up the platform display name of an account.
type NameResolver interface {
	ResolveName(ctx context.Context, accountID string) (string, error)
}

// StaticResolver resolves names from a fixed table.
type StaticResolver map[string]string

func (r StaticResolver) ResolveName(_ context.Context, accountID string) (string, error) {
	if name, ok := r[accountID]; ok {
		return name, nil
	}
	return "", ErrNameNotFound
}

// NameService labels accounts with display names. Names are stored in the
// names table and cached in redis. Reads never reach the resolver: a name
// only changes when RefreshName is called.
type NameService struct {
	accounts *AccountStore
	redis    *redis.Client
	resolver NameResolver
	ttl      time.Duration
	prefix   string
	log      *logrus.Logger
}

func NewNameService(accounts *AccountStore, redisClient *redis.Client, resolver NameResolver, ttl time.Duration, log *logrus.Logger) *NameService {
	return &NameService{
		accounts: accounts,
		redis:    redisClient,
		resolver: resolver,
		ttl:      ttl,
		prefix:   "tigris:name:",
		log:      log,
	}
}

// Placeholder is the label used for accounts without a stored name.
func Placeholder(id string) string {
	return fmt.Sprintf("<%s>", id)
}

// DisplayName returns the cached or stored name of id, or its placeholder.
func (s *NameService) DisplayName(ctx context.Context, id string) string {
	if s.redis != nil {
		name, err := s.redis.Get(ctx, s.key(id)).Result()
		if err == nil {
			return name
		}
		if !errors.Is(err, redis.Nil) {
			s.log.WithError(err).WithField("user_id", id).Warn("name cache read failed")
		}
	}

	name, err := s.accounts.GetName(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNameNotFound) {
			s.log.WithError(err).WithField("user_id", id).Warn("name lookup failed")
		}
		return Placeholder(id)
	}

	s.cache(ctx, id, name)
	return name
}

// RefreshName asks the resolver for the current name of id and stores it.
// Resolver failures other than an unknown id wrap ErrDirectoryUnavailable.
func (s *NameService) RefreshName(ctx context.Context, id string) (string, error) {
	name, err := s.resolver.ResolveName(ctx, id)
	if errors.Is(err, ErrNameNotFound) {
		return "", fmt.Errorf("resolve name of %s: %w", id, err)
	}
	if err != nil {
		return "", fmt.Errorf("resolve name of %s: %w: %w", id, ErrDirectoryUnavailable, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("resolve name of %s: %w", id, ErrNameNotFound)
	}

	if err := s.accounts.SetName(ctx, id, name); err != nil {
		return "", err
	}
	s.cache(ctx, id, name)
	return name, nil
}

// Invalidate drops the cached name of id.
func (s *NameService) Invalidate(ctx context.Context, id string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, s.key(id)).Err()
}

func (s *NameService) cache(ctx context.Context, id, name string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, s.key(id), name, s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("user_id", id).Warn("name cache write failed")
	}
}

func (s *NameService) key(id string) string {
	return s.prefix + id
}
