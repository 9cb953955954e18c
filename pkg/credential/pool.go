// Package credential implements the round-robin, single-flight-refreshed
// credential pool described in spec §4.H: a fixed ordered list of
// upstream refresh-token configs, each backed by a lazily-refreshed
// access token cache with a quota probe driving exhaustion.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kiro-gateway/gateway/pkg/gatewayerrors"
)

// AuthMethod distinguishes the two refresh-token flavors spec §6
// describes.
type AuthMethod string

const (
	AuthSocial AuthMethod = "Social"
	AuthIdC    AuthMethod = "IdC"
)

// Config is one credential pool entry's static configuration, loaded
// from the external credential file (spec §6).
type Config struct {
	Auth         AuthMethod
	RefreshToken string
	ClientID     string
	ClientSecret string
	Disabled     bool
	Description  string
}

// cacheEntry is the mutable, per-index state spec §3 calls "Credential
// Pool Entry". All mutation happens under the pool mutex; a refresh
// installs its new entry under that mutex from inside the index's
// single-flight call.
type cacheEntry struct {
	cachedToken    string
	cachedAt       time.Time
	expiresAt      time.Time
	availableQuota int
	usageInfo      interface{}
	lastUsed       time.Time
}

func (e *cacheEntry) fresh(now time.Time, safetyMargin time.Duration) bool {
	if e == nil || e.cachedToken == "" {
		return false
	}
	return now.Add(safetyMargin).Before(e.expiresAt)
}

// Selection is what Select() hands back to a caller about to make an
// upstream call.
type Selection struct {
	Token          string
	Index          int
	AvailableBefore int
	Exceeded       bool
}

const (
	defaultSafetyMargin = 5 * time.Minute
	defaultTTL          = 24 * time.Hour
	defaultSweepPeriod  = 60 * time.Second
)

// Pool is the process-wide credential pool, constructed explicitly via
// New and torn down explicitly via Destroy — spec §9's "model as an
// explicit object, not an ambient singleton" decision.
type Pool struct {
	log      *zap.Logger
	refresher Refresher

	safetyMargin time.Duration
	ttl          time.Duration

	mu           sync.Mutex
	configs      []Config
	cache        []*cacheEntry
	currentIndex int
	exhausted    map[int]bool

	sf singleflight.Group

	sweepStop chan struct{}
	sweepDone chan struct{}
	destroyed bool
}

// Refresher performs the two network calls Refresh needs: minting a
// fresh access token, and probing remaining quota with it. Splitting
// it out of Pool lets tests substitute a fake without spinning up
// httptest servers for every case.
type Refresher interface {
	RefreshToken(ctx context.Context, cfg Config) (RefreshResult, error)
	ProbeQuota(ctx context.Context, accessToken string) (int, interface{}, error)
}

// RefreshResult is the upstream refresh endpoint's response shape, per
// spec §4.H.
type RefreshResult struct {
	AccessToken  string
	ExpiresIn    int
	RefreshToken string
	ProfileArn   string
}

// New constructs a pool over the given (already filtered-for-disabled)
// configs. Pass zero for safetyMargin/ttl to use the spec's defaults
// (5-minute refresh margin, 24-hour eviction TTL).
func New(configs []Config, refresher Refresher, log *zap.Logger, safetyMargin, ttl time.Duration) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if safetyMargin <= 0 {
		safetyMargin = defaultSafetyMargin
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	p := &Pool{
		log:          log,
		refresher:    refresher,
		safetyMargin: safetyMargin,
		ttl:          ttl,
		configs:      configs,
		cache:        make([]*cacheEntry, len(configs)),
		exhausted:    make(map[int]bool),
		sweepStop:    make(chan struct{}),
		sweepDone:    make(chan struct{}),
	}
	for i := range p.cache {
		p.cache[i] = &cacheEntry{}
	}
	go p.sweepLoop()
	return p
}

// Select implements spec §4.H's round-robin-with-exhaustion algorithm.
func (p *Pool) Select(ctx context.Context) (Selection, error) {
	n := len(p.configs)
	if n == 0 {
		return Selection{}, errors.New("credential pool is empty")
	}

	for attempt := 0; attempt < n; attempt++ {
		p.mu.Lock()
		i := p.currentIndex
		entry := p.cache[i]
		p.mu.Unlock()

		if entry.availableQuota <= 0 && !entry.cachedAt.IsZero() {
			p.markExhausted(i)
			p.advanceCursor()
			continue
		}

		token, err := p.GetOrRefresh(ctx, i)
		if err != nil {
			p.log.Warn("credential refresh failed, trying next entry",
				zap.Int("index", i), zap.Error(err))
			p.markExhausted(i)
			p.advanceCursor()
			continue
		}

		p.mu.Lock()
		available := p.cache[i].availableQuota
		if available > 0 {
			p.cache[i].availableQuota--
		}
		p.cache[i].lastUsed = time.Now()
		p.mu.Unlock()

		p.advanceCursor()
		return Selection{
			Token:           token,
			Index:           i,
			AvailableBefore: available,
			Exceeded:        available <= 0,
		}, nil
	}

	return Selection{}, gatewayerrors.NewAllCredentialsFailedError(n, errors.New("all credentials exhausted or failing"))
}

func (p *Pool) advanceCursor() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentIndex = (p.currentIndex + 1) % len(p.configs)
}

func (p *Pool) markExhausted(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted[i] = true
}

// GetOrRefresh returns a fresh access token for index i, refreshing it
// through a per-index single-flight call if the cached one is stale or
// absent (spec §4.H step 1-4).
func (p *Pool) GetOrRefresh(ctx context.Context, i int) (string, error) {
	p.mu.Lock()
	entry := p.cache[i]
	if entry.fresh(time.Now(), p.safetyMargin) {
		token := entry.cachedToken
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	key := strconv.Itoa(i)
	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		// Double-checked: another caller may have refreshed while we
		// waited to acquire the single-flight slot.
		p.mu.Lock()
		entry := p.cache[i]
		if entry.fresh(time.Now(), p.safetyMargin) {
			token := entry.cachedToken
			p.mu.Unlock()
			return token, nil
		}
		p.mu.Unlock()

		return p.refresh(ctx, i)
	})
	if err != nil {
		return "", gatewayerrors.NewRefreshFailureError(i, err)
	}
	return v.(string), nil
}

// refresh performs the actual network round trip and quota probe, per
// spec §4.H's Refresh algorithm, then installs the result into the
// cache.
func (p *Pool) refresh(ctx context.Context, i int) (string, error) {
	p.mu.Lock()
	cfg := p.configs[i]
	p.mu.Unlock()

	result, err := p.refresher.RefreshToken(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("refresh token for index %d: %w", i, err)
	}

	quota, usageInfo, qerr := p.refresher.ProbeQuota(ctx, result.AccessToken)
	if qerr != nil {
		// Quota-probe failure must not fail the refresh (spec §7).
		p.log.Warn("quota probe failed, defaulting to zero available quota",
			zap.Int("index", i), zap.Error(qerr))
		quota = 0
	}

	now := time.Now()
	p.mu.Lock()
	p.cache[i] = &cacheEntry{
		cachedToken:    result.AccessToken,
		cachedAt:       now,
		expiresAt:      now.Add(time.Duration(result.ExpiresIn) * time.Second),
		availableQuota: quota,
		usageInfo:      usageInfo,
		lastUsed:       p.cache[i].lastUsed,
	}
	delete(p.exhausted, i)
	p.mu.Unlock()

	p.log.Info("credential refreshed", zap.Int("index", i), zap.Int("available_quota", quota))
	return result.AccessToken, nil
}

// sweepLoop evicts stale cache entries roughly every 60s, per spec
// §4.H's periodic sweep / §3's lifecycle note.
func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(defaultSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.cache {
		if entry.cachedToken == "" {
			continue
		}
		if now.Sub(entry.cachedAt) > p.ttl || now.After(entry.expiresAt) {
			p.cache[i] = &cacheEntry{lastUsed: entry.lastUsed}
		}
	}
}

// Destroy stops the sweep timer and releases pool state. Idempotent,
// per spec §4.H/§9.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	close(p.sweepStop)
	<-p.sweepDone
}

// Len reports how many credential configs the pool was constructed
// with, mainly for diagnostics and tests.
func (p *Pool) Len() int {
	return len(p.configs)
}
