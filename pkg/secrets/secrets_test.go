package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSM struct {
	values map[string]string
	calls  int
}

func (f *fakeSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	sm := &fakeSM{values: map[string]string{
		"prod/swap-engine/aggregator": `{"api_key":"k-123","base_url":"https://api.1inch.dev/swap/v5.2"}`,
		"prod/swap-engine/broken":     `not-json`,
	}}
	p := NewAWSProviderWithClient(sm)

	got, err := p.GetSecret(context.Background(), "prod/swap-engine/aggregator")
	require.NoError(t, err)
	assert.Equal(t, "k-123", got["api_key"])

	_, err = p.GetSecret(context.Background(), "prod/swap-engine/broken")
	assert.ErrorContains(t, err, "invalid secret format")

	_, err = p.GetSecret(context.Background(), "missing")
	assert.ErrorContains(t, err, "fetch secret [missing]")
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache[string](time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Bust(t *testing.T) {
	c := NewCache[int](time.Hour)
	c.Put("a", 1)
	c.Bust("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
