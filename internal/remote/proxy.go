package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// Proxy is one outbound proxy candidate.
type Proxy struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// URL renders the candidate as an http proxy URL.
func (p Proxy) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", p.Host, p.Port)}
}

// ProxyPoolConfig controls candidate selection and liveness probing.
type ProxyPoolConfig struct {
	// CheckURL is the fixed external host probed through a candidate.
	CheckURL string
	// CheckTimeout bounds one liveness probe.
	CheckTimeout time.Duration
	// MaxAttempts bounds how many candidates are sampled per Pick call.
	MaxAttempts int
}

// ProxyPool selects a reachable proxy from a configured candidate list.
// A pseudo-random candidate is probed with a short-timeout request; on
// failure another candidate is sampled, up to MaxAttempts.
type ProxyPool struct {
	candidates []Proxy
	cfg        ProxyPoolConfig
	logger     *zap.Logger

	// checker is injectable for tests.
	checker func(ctx context.Context, proxy *url.URL) error
}

// LoadProxyPool reads the candidate list from a JSON file of
// {"host": ..., "port": ...} objects.
func LoadProxyPool(path string, cfg ProxyPoolConfig, logger *zap.Logger) (*ProxyPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	var candidates []Proxy
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("decode proxy file: %w", err)
	}
	return NewProxyPool(candidates, cfg, logger)
}

// NewProxyPool builds a pool from an in-memory candidate list.
func NewProxyPool(candidates []Proxy, cfg ProxyPoolConfig, logger *zap.Logger) (*ProxyPool, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("proxy pool is empty")
	}
	if cfg.CheckURL == "" {
		cfg.CheckURL = "https://www.google.com"
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	p := &ProxyPool{
		candidates: candidates,
		cfg:        cfg,
		logger:     logger,
	}
	p.checker = p.checkProxy
	return p, nil
}

// Pick returns a proxy that passed the liveness probe. It samples at most
// MaxAttempts candidates before giving up.
func (p *ProxyPool) Pick(ctx context.Context) (*url.URL, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		candidate := p.candidates[rand.Intn(len(p.candidates))] //nolint:gosec // selection, not crypto
		proxyURL := candidate.URL()

		if err := p.checker(ctx, proxyURL); err != nil {
			lastErr = err
			metrics.ProxyCheck("failed")
			p.logger.Debug("proxy check failed",
				zap.String("proxy", proxyURL.Host),
				zap.Error(err),
			)
			continue
		}
		metrics.ProxyCheck("ok")
		return proxyURL, nil
	}
	return nil, fmt.Errorf("no reachable proxy after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

func (p *ProxyPool) checkProxy(ctx context.Context, proxyURL *url.URL) error {
	client := &http.Client{
		Timeout: p.cfg.CheckTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.CheckURL, nil)
	if err != nil {
		return fmt.Errorf("build check request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy check: %w", err)
	}
	return resp.Body.Close()
}
