package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/swap-engine/pkg/secrets"
	"github.com/Checker-Finance/swap-engine/pkg/utils"
)

// AggregatorSecret holds the aggregator credentials.
type AggregatorSecret struct {
	APIKey  string
	BaseURL string
}

// AuthSecret holds the JWT signing secret.
type AuthSecret struct {
	JWTSecret string
}

// Resolver loads service secrets from a Provider and caches them.
//
// Secret naming convention: {prefix}/aggregator and {prefix}/auth
type Resolver struct {
	logger   *zap.Logger
	prefix   string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[map[string]string]
}

// NewResolver constructs a Resolver.
func NewResolver(logger *zap.Logger, prefix string, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[map[string]string]) *Resolver {
	return &Resolver{
		logger:   logger,
		prefix:   strings.TrimSuffix(prefix, "/"),
		provider: provider,
		cache:    cache,
	}
}

func (r *Resolver) fetch(ctx context.Context, name string) (map[string]string, error) {
	key := strings.ToLower(r.prefix + "/" + name)
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	v, err := r.provider.GetSecret(ctx, key)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("resolve %q: %w", key, err)
	}
	r.cache.Put(key, v)
	r.logger.Info("secrets.resolved", zap.String("key", key))
	return v, nil
}

// Aggregator resolves the aggregator API key and optional base URL.
func (r *Resolver) Aggregator(ctx context.Context) (AggregatorSecret, error) {
	m, err := r.fetch(ctx, "aggregator")
	if err != nil {
		return AggregatorSecret{}, err
	}
	s := AggregatorSecret{APIKey: m["api_key"], BaseURL: m["base_url"]}
	if s.APIKey == "" {
		return AggregatorSecret{}, errors.New("aggregator secret missing api_key")
	}
	r.logger.Debug("secrets.aggregator", zap.String("api_key", utils.MaskSecret(s.APIKey)))
	return s, nil
}

// Auth resolves the JWT signing secret.
func (r *Resolver) Auth(ctx context.Context) (AuthSecret, error) {
	m, err := r.fetch(ctx, "auth")
	if err != nil {
		return AuthSecret{}, err
	}
	s := AuthSecret{JWTSecret: m["jwt_secret"]}
	if s.JWTSecret == "" {
		return AuthSecret{}, errors.New("auth secret missing jwt_secret")
	}
	return s, nil
}
