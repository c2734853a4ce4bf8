package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/swap-engine/pkg/secrets"
)

type mockProvider struct {
	secrets map[string]map[string]string
	calls   map[string]int
}

func (m *mockProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
	s, ok := m.secrets[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func newResolver(p pkgsecrets.Provider) *Resolver {
	return NewResolver(zap.NewNop(), "Prod/Swap-Engine/", p, pkgsecrets.NewCache[map[string]string](time.Minute))
}

func TestResolver_AggregatorCached(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/swap-engine/aggregator": {"api_key": "key-1", "base_url": "https://agg"},
	}}
	r := newResolver(p)

	s, err := r.Aggregator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-1", s.APIKey)
	assert.Equal(t, "https://agg", s.BaseURL)

	_, err = r.Aggregator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls["prod/swap-engine/aggregator"])
}

func TestResolver_MissingFields(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/swap-engine/aggregator": {"base_url": "https://agg"},
		"prod/swap-engine/auth":       {},
	}}
	r := newResolver(p)

	_, err := r.Aggregator(context.Background())
	assert.ErrorContains(t, err, "api_key")

	_, err = r.Auth(context.Background())
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestResolver_ProviderError(t *testing.T) {
	r := newResolver(&mockProvider{})
	_, err := r.Auth(context.Background())
	assert.ErrorContains(t, err, "prod/swap-engine/auth")
}
