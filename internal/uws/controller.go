package uws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
)

// DefaultPollInterval matches the archive's recommended polling cadence.
const DefaultPollInterval = 20 * time.Second

// Job is a remote UWS job identified by its location.
type Job struct {
	Location string
}

// Controller creates, starts and polls jobs. It holds no per-job state and is
// safe for concurrent use.
type Controller struct {
	sender       transport.Sender
	logger       *slog.Logger
	pollInterval time.Duration
	maxWait      time.Duration
	sleep        Sleeper
	now          func() time.Time
}

type Option func(*Controller)

// WithPollInterval sets the fixed delay between polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxWait bounds the total time Wait spends polling. Zero keeps it unbounded.
func WithMaxWait(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.maxWait = d
		}
	}
}

// WithSleeper replaces the timer used between polls.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithClock replaces the clock used to enforce MaxWait.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(sender transport.Sender, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		sender:       sender,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		sleep:        TimerSleeper,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PollInterval returns the configured delay between polls.
func (c *Controller) PollInterval() time.Duration { return c.pollInterval }

// CreateJob submits one ID=<token> pair per token, in order, to endpoint.
// The final request URL after redirects becomes the job location.
func (c *Controller) CreateJob(ctx context.Context, endpoint string, tokens []string) (Job, error) {
	if len(tokens) == 0 {
		return Job{}, common.ErrNoTokens
	}
	if strings.TrimSpace(endpoint) == "" {
		return Job{}, fmt.Errorf("%w: empty job endpoint", common.ErrUnresolvedService)
	}
	params := url.Values{"ID": append([]string(nil), tokens...)}

	resp, err := c.sender.Send(ctx, transport.Request{
		Method:        http.MethodPost,
		URL:           endpoint,
		Params:        params,
		Authenticated: true,
	})
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	job := Job{Location: strings.TrimRight(resp.FinalURL, "/")}
	c.logger.Info("uws.job.created", "location", job.Location, "tokens", len(tokens))
	return job, nil
}

// Start moves the job out of PENDING.
func (c *Controller) Start(ctx context.Context, job Job) error {
	_, err := c.sender.Send(ctx, transport.Request{
		Method:        http.MethodPost,
		URL:           job.Location + "/phase",
		Form:          url.Values{"phase": {"RUN"}},
		Authenticated: true,
	})
	if err != nil {
		return fmt.Errorf("start job %s: %w", job.Location, err)
	}
	c.logger.Info("uws.job.started", "location", job.Location)
	return nil
}

// Fetch performs one uncached GET of the job detail document.
func (c *Controller) Fetch(ctx context.Context, job Job) (*JobDocument, error) {
	resp, err := c.sender.Send(ctx, transport.Request{
		Method:        http.MethodGet,
		URL:           job.Location,
		Authenticated: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", job.Location, err)
	}
	return ParseJobDocument(resp.Body)
}

// Wait polls until the job leaves PENDING, QUEUED and EXECUTING, sleeping
// exactly the poll interval between reads. On cancellation or MaxWait expiry it
// returns the last phase seen together with the error; the remote job keeps running.
func (c *Controller) Wait(ctx context.Context, job Job) (constants.Phase, error) {
	start := c.now()
	var last constants.Phase
	for polls := 1; ; polls++ {
		doc, err := c.Fetch(ctx, job)
		if err != nil {
			return last, err
		}
		phase, err := doc.Phase()
		if err != nil {
			return last, err
		}
		last = phase
		if phase.IsTerminal() {
			c.logger.Info("uws.job.terminal", "location", job.Location, "phase", phase, "polls", polls)
			return phase, nil
		}

		if c.maxWait > 0 && c.now().Sub(start)+c.pollInterval > c.maxWait {
			c.logger.Warn("uws.job.poll_timeout", "location", job.Location, "phase", phase, "max_wait", c.maxWait)
			return phase, fmt.Errorf("%w: %s still %s after %s", common.ErrPollTimeout, job.Location, phase, c.maxWait)
		}
		c.logger.Info("uws.job.polling", "location", job.Location, "phase", phase, "interval", c.pollInterval)
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			c.logger.Warn("uws.job.wait_cancelled", "location", job.Location, "phase", phase, "error", err)
			return phase, err
		}
	}
}

// RunToCompletion starts the job and waits for a terminal phase.
// ERROR, ABORTED, HELD and SUSPENDED are returned as phases, not errors.
func (c *Controller) RunToCompletion(ctx context.Context, job Job) (constants.Phase, error) {
	if err := c.Start(ctx, job); err != nil {
		return "", err
	}
	return c.Wait(ctx, job)
}
