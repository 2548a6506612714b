// Package casda is the client for the CSIRO ASKAP Science Data Archive: region
// queries over its SIA2 service and credential-gated staging of data products
// through datalink and an asynchronous SODA job.
package casda

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

// Transport is what the client needs from the HTTP layer.
type Transport interface {
	transport.Sender
	Download(ctx context.Context, req transport.Request, w io.Writer) (int64, error)
}

// Config for the archive client.
type Config struct {
	QueryURL      string
	Service       string // datalink service whose tokens are staged
	Authenticated bool   // credentials were supplied to the transport
}

// Client talks to the archive. It keeps no per-request state.
type Client struct {
	cfg       Config
	transport Transport
	jobs      *uws.Controller
	logger    *slog.Logger
}

func NewClient(cfg Config, t Transport, logger *slog.Logger, opts ...uws.Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Service == "" {
		cfg.Service = constants.DefaultService
	}
	return &Client{
		cfg:       cfg,
		transport: t,
		jobs:      uws.NewController(t, logger, opts...),
		logger:    logger,
	}
}

// NewFromConfig wires an HTTP transport from the environment configuration.
func NewFromConfig(cfg common.ArchiveConfig, httpClient *http.Client, logger *slog.Logger, opts ...uws.Option) *Client {
	tcfg := transport.Config{
		Timeout:        cfg.Timeout,
		RequestsPerSec: cfg.RequestsPerSec,
		CacheSize:      cfg.CacheSize,
	}
	if cfg.HasCredentials() {
		tcfg.Credentials = &transport.Credentials{User: cfg.User, Password: cfg.Password}
	}
	t := transport.NewHTTP(tcfg, httpClient, logger)

	base := []uws.Option{uws.WithPollInterval(cfg.PollInterval), uws.WithMaxWait(cfg.MaxWait)}
	return NewClient(Config{
		QueryURL:      cfg.QueryURL,
		Service:       cfg.Service,
		Authenticated: cfg.HasCredentials(),
	}, t, logger, append(base, opts...)...)
}

// Jobs exposes the UWS controller used for staging.
func (c *Client) Jobs() *uws.Controller { return c.jobs }

func since(t time.Time) int64 { return time.Since(t).Milliseconds() }
