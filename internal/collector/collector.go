package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"BarLedger/internal/logger"
	"BarLedger/internal/quota"
	"BarLedger/internal/retry"

	"github.com/sirupsen/logrus"
)

// Common holds what every provider needs to call out: identity, quota,
// retry policy and HTTP client.
type Common struct {
	Priority  int
	RateLimit int // calls per minute, 0 disables
	Retry     retry.Policy
	Proxy     string
	Timeout   time.Duration
	Client    *http.Client
	Log       *logrus.Entry
	Now       func() time.Time
}

type base struct {
	name     string
	priority int
	client   *http.Client
	governor *quota.Governor
	exec     *retry.Executor
	log      *logrus.Entry
	now      func() time.Time
	names    *nameCache
}

func newBase(name string, c Common) base {
	log := c.Log
	if log == nil {
		log = logger.Component("collector")
	}
	log = log.WithField("provider", name)
	client := c.Client
	if client == nil {
		client = newHTTPClient(c.Proxy, c.Timeout)
	}
	policy := c.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return base{
		name:     name,
		priority: c.Priority,
		client:   client,
		governor: quota.New(name, c.RateLimit, quota.WithLogger(log)),
		exec:     retry.New(policy, IsTransient, retry.WithLogger(log)),
		log:      log,
		now:      now,
		names:    newNameCache(),
	}
}

func (b *base) Name() string  { return b.name }
func (b *base) Priority() int { return b.priority }

// Governor exposes the provider's quota counter.
func (b *base) Governor() *quota.Governor { return b.governor }

// call runs one remote operation: quota first on every attempt, retried on
// transient failures, classified on the way out.
func (b *base) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := b.exec.Do(ctx, b.name+"."+op, func(ctx context.Context) error {
		if err := b.governor.Acquire(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
	if err != nil {
		return b.fail(op, Classify(err), err)
	}
	return nil
}

func (b *base) fail(op string, kind Kind, err error) error {
	return &Error{Provider: b.name, Op: op, Kind: kind, Err: err}
}

func (b *base) notConfigured(op string) error {
	return b.fail(op, KindNotConfigured, ErrNotConfigured)
}

func (b *base) unsupported(op string) error {
	return fmt.Errorf("%s %s: %w", b.name, op, ErrUnsupported)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// doJSON sends req and decodes a 200 response into out, keeping numbers as json.Number.
func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

type nameCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{m: make(map[string]string)}
}

func (c *nameCache) get(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.m[BareCode(code)]
	return n, ok
}

func (c *nameCache) put(code, name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.m[BareCode(code)] = name
	c.mu.Unlock()
}
