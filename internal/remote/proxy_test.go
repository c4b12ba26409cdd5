package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadProxyPool(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proxies.json")
	candidates := []Proxy{{Host: "10.0.0.1", Port: 8080}, {Host: "10.0.0.2", Port: 3128}}
	data, err := json.Marshal(candidates)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	pool, err := LoadProxyPool(path, ProxyPoolConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Len(t, pool.candidates, 2)
}

func TestLoadProxyPoolRejectsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proxies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	_, err := LoadProxyPool(path, ProxyPoolConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestPickRetriesUntilReachable(t *testing.T) {
	t.Parallel()

	pool, err := NewProxyPool([]Proxy{{Host: "10.0.0.1", Port: 8080}}, ProxyPoolConfig{MaxAttempts: 5}, zap.NewNop())
	require.NoError(t, err)

	checks := 0
	pool.checker = func(_ context.Context, _ *url.URL) error {
		checks++
		if checks < 3 {
			return errors.New("unreachable")
		}
		return nil
	}

	proxyURL, err := pool.Pick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", proxyURL.Host)
	assert.Equal(t, 3, checks)
}

func TestPickGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	pool, err := NewProxyPool([]Proxy{{Host: "10.0.0.1", Port: 8080}}, ProxyPoolConfig{MaxAttempts: 4}, zap.NewNop())
	require.NoError(t, err)

	checks := 0
	pool.checker = func(_ context.Context, _ *url.URL) error {
		checks++
		return errors.New("unreachable")
	}

	_, err = pool.Pick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, checks, "sampling must be bounded")
}
