// Package provider calls one external plant identification service and
// normalises its answer into a domain.Identification.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/fn"
	"github.com/herbid/herbid/pkg/resilience"
)

// Adapter identifies a plant from image bytes. Failures wrap one of
// domain.ErrProviderUnavailable, domain.ErrProviderTimeout or
// domain.ErrProviderResponse.
type Adapter interface {
	Name() string
	Identify(ctx context.Context, image []byte) (domain.Identification, error)
}

// DefaultMinConfidence is the score below which an answer is flagged as
// low confidence.
const DefaultMinConfidence = 0.10

// Options configures a provider client.
type Options struct {
	APIKey        string
	URL           string
	Timeout       time.Duration
	MinConfidence float64
	// Project is the Pl@ntNet flora project ("all" by default).
	Project string
	// Language requests common names in this locale.
	Language string
}

func (o Options) withDefaults(url string) Options {
	if o.URL == "" {
		o.URL = url
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Language == "" {
		o.Language = "en"
	}
	return o
}

// client holds the transport shared by the concrete providers.
type client struct {
	name    string
	opts    Options
	http    *http.Client
	breaker *resilience.Breaker
	logger  *slog.Logger
}

func newClient(name string, opts Options, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		name:   name,
		opts:   opts,
		http:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger: logger,
		breaker: resilience.NewBreaker(resilience.BreakerOpts{
			Name:          name,
			FailThreshold: 3,
			Timeout:       time.Minute,
			IsFailure:     countsAgainstProvider,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("provider breaker state change", "provider", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// countsAgainstProvider trips the breaker only for outages, not for
// answers the provider gave but we could not use.
func countsAgainstProvider(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderTimeout)
}

func (c *client) fail(op string, sentinel error, detail string) error {
	return &domain.ProviderError{Provider: c.name, Op: op, Wrapped: sentinel, Detail: detail}
}

// identify runs build→send→normalise under the per-call timeout and breaker.
func (c *client) identify(ctx context.Context, image []byte, build func(ctx context.Context) (*http.Request, error)) (domain.Identification, error) {
	if c.opts.APIKey == "" {
		return domain.Identification{}, c.fail("identify", domain.ErrProviderUnavailable, "no API key configured")
	}
	if err := domain.ValidateImage(image); err != nil {
		return domain.Identification{}, err
	}

	res := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[domain.Identification] {
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		req, err := build(ctx)
		if err != nil {
			return fn.Err[domain.Identification](c.fail("build request", domain.ErrProviderResponse, err.Error()))
		}
		body, err := c.send(req)
		if err != nil {
			return fn.Err[domain.Identification](err)
		}
		id, err := Normalize(body)
		if err != nil {
			return fn.Err[domain.Identification](c.fail("normalize", domain.ErrProviderResponse, err.Error()))
		}
		id.LowConfidence = id.Score < c.opts.MinConfidence
		return fn.Ok(id)
	})

	id, err := res.Unwrap()
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return id, c.fail("identify", domain.ErrProviderUnavailable, "circuit open")
	}
	return id, err
}

func (c *client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, c.fail("request", domain.ErrProviderTimeout, err.Error())
		}
		return nil, c.fail("request", domain.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if isTimeout(err) {
			return nil, c.fail("read", domain.ErrProviderTimeout, err.Error())
		}
		return nil, c.fail("read", domain.ErrProviderUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, c.fail("request", domain.ErrProviderUnavailable, statusDetail(resp.StatusCode, body))
	default:
		return nil, c.fail("request", domain.ErrProviderResponse, statusDetail(resp.StatusCode, body))
	}
}

func statusDetail(code int, body []byte) string {
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("status %d: %s", code, body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Disabled is the adapter used when no provider is configured. It always
// reports ErrProviderUnavailable so the engine moves on to local matching.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Identify(context.Context, []byte) (domain.Identification, error) {
	return domain.Identification{}, &domain.ProviderError{Provider: "none", Op: "identify", Wrapped: domain.ErrProviderUnavailable}
}
