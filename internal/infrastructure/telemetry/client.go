// Package telemetry subscribes to in-game features for the active session
// and releases them on close.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/tracing"
)

const queueSize = 16

var ErrClosed = errors.New("telemetry client closed")

// Options configures a Client.
type Options struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond int
	// RetryMax of zero means three retries; negative disables retrying.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

type featuresRequest struct {
	Features []string `json:"features"`
}

// Client talks to the telemetry service over HTTP. Calls are queued and
// sent in order by one worker so the core never waits on the network.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	timeout time.Duration
	logger  *zap.Logger
	tracer  *tracing.Tracer

	mu     sync.Mutex
	closed bool
	jobs   chan job
	idle   sync.WaitGroup
	done   chan struct{}
}

type job struct {
	name string
	call func(ctx context.Context) error
}

// NewClient creates a client and starts its worker.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	switch {
	case opts.RetryMax < 0:
		opts.RetryMax = 0
	case opts.RetryMax == 0:
		opts.RetryMax = 3
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 200 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 2 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(opts.Endpoint, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "SessionHost/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsPerSecond)
	}

	named := logger.Named("telemetry")
	breaker := resilience.New("telemetry", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			named.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	c := &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		timeout: opts.Timeout,
		logger:  named,
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go c.work()
	return c
}

// WithTracer records a client span per call and propagates its trace
// headers. Call before the first event.
func (c *Client) WithTracer(t *tracing.Tracer) *Client {
	c.tracer = t
	return c
}

// OnSessionLaunched subscribes to the session's features.
func (c *Client) OnSessionLaunched(features []string) {
	body := featuresRequest{Features: append([]string(nil), features...)}
	if body.Features == nil {
		body.Features = []string{}
	}
	c.enqueue("features", func(ctx context.Context) error {
		return c.post(ctx, "/features", body)
	})
}

// OnSessionClosed releases the session's features.
func (c *Client) OnSessionClosed() {
	c.enqueue("session-closed", func(ctx context.Context) error {
		return c.post(ctx, "/session/closed", nil)
	})
}

// Wait blocks until every queued call has finished.
func (c *Client) Wait() {
	c.idle.Wait()
}

// Close stops accepting calls, drains the queue and stops the worker.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()

	<-c.done
	return nil
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) enqueue(name string, call func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debug("Dropping telemetry call", zap.String("call", name), zap.Error(ErrClosed))
		return
	}

	c.idle.Add(1)
	select {
	case c.jobs <- job{name: name, call: call}:
	default:
		c.idle.Done()
		c.logger.Warn("Telemetry queue full, dropping call", zap.String("call", name))
	}
}

func (c *Client) work() {
	defer close(c.done)
	for j := range c.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		if err := c.call(ctx, j); err != nil {
			c.logger.Warn("Telemetry call failed", zap.String("call", j.name), zap.Error(err))
		} else {
			c.logger.Debug("Telemetry call sent", zap.String("call", j.name))
		}
		cancel()
		c.idle.Done()
	}
}

func (c *Client) call(ctx context.Context, j job) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return c.breaker.Do(func() error {
		return j.call(ctx)
	})
}

func (c *Client) post(ctx context.Context, path string, body any) (err error) {
	req := c.resty.R()
	if c.tracer != nil {
		var span *tracing.Span
		span, ctx = c.tracer.StartSpan(ctx, "telemetry POST "+path)
		span.SetTag("span.kind", "client")
		headers := make(map[string]string, 2)
		tracing.Inject(ctx, headers)
		req.SetHeaders(headers)
		defer func() {
			if err != nil {
				span.SetError(err)
			}
			span.Finish()
			c.tracer.Submit(span)
		}()
	}
	req.SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode())
	}
	return nil
}

// Nop stands in when no telemetry endpoint is configured.
type Nop struct {
	Logger *zap.Logger
}

// OnSessionLaunched logs the features it would subscribe to.
func (n Nop) OnSessionLaunched(features []string) {
	if n.Logger != nil {
		n.Logger.Debug("Telemetry disabled, skipping feature subscription", zap.Strings("features", features))
	}
}

// OnSessionClosed does nothing.
func (n Nop) OnSessionClosed() {}
