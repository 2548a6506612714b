package casda

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/datalink"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
	"github.com/joseph-ayodele/casda-stager/internal/votable"
)

// StageResult describes a finished staging job.
type StageResult struct {
	JobLocation string
	Phase       constants.Phase
	URLs        []string
}

// StageHooks observe progress of a staging request. Nil hooks are skipped.
type StageHooks struct {
	Resolved   func(ctx context.Context, endpoint string, tokens int) error
	JobCreated func(ctx context.Context, job uws.Job) error
}

// StageData stages the files behind accessURLs and returns the download
// locations of the files and their checksums.
func (c *Client) StageData(ctx context.Context, accessURLs []string) ([]string, error) {
	res, err := c.Stage(ctx, accessURLs)
	if err != nil {
		return nil, err
	}
	return res.URLs, nil
}

// Stage is StageData that also reports the job location and terminal phase.
func (c *Client) Stage(ctx context.Context, accessURLs []string) (*StageResult, error) {
	return c.StageWithHooks(ctx, accessURLs, StageHooks{})
}

// StageWithHooks resolves one token per access url, creates a single job for
// all of them, runs it to a terminal phase and reads its result manifest.
func (c *Client) StageWithHooks(ctx context.Context, accessURLs []string, hooks StageHooks) (*StageResult, error) {
	if !c.cfg.Authenticated {
		return nil, common.ErrAuthenticationRequired
	}
	start := time.Now()

	endpoint, tokens, err := c.ResolveTokens(ctx, accessURLs)
	if err != nil {
		return nil, err
	}
	if hooks.Resolved != nil {
		if err := hooks.Resolved(ctx, endpoint, len(tokens)); err != nil {
			return nil, err
		}
	}

	job, err := c.jobs.CreateJob(ctx, endpoint, tokens)
	if err != nil {
		return nil, err
	}
	c.logger.Info("casda.stage.job_created", "location", job.Location, "files", len(tokens))
	if hooks.JobCreated != nil {
		if err := hooks.JobCreated(ctx, job); err != nil {
			return nil, err
		}
	}

	phase, err := c.jobs.RunToCompletion(ctx, job)
	if err != nil {
		return &StageResult{JobLocation: job.Location, Phase: phase}, err
	}
	if !phase.IsSuccessful() {
		c.logger.Warn("casda.stage.job_not_completed", "location", job.Location, "phase", phase)
	}

	doc, err := c.jobs.Fetch(ctx, job)
	if err != nil {
		return &StageResult{JobLocation: job.Location, Phase: phase}, err
	}
	urls := uws.ExtractFileURLs(doc)
	c.logger.Info("casda.stage.done",
		"location", job.Location,
		"phase", phase,
		"urls", len(urls),
		"elapsed_ms", since(start),
	)
	return &StageResult{JobLocation: job.Location, Phase: phase, URLs: urls}, nil
}

// ResolveTokens fetches the datalink document behind every access url and
// returns the shared staging endpoint with the tokens in input order.
// Rows that resolve to different endpoints are rejected.
func (c *Client) ResolveTokens(ctx context.Context, accessURLs []string) (string, []string, error) {
	var (
		endpoint string
		tokens   = make([]string, 0, len(accessURLs))
	)
	for i, accessURL := range accessURLs {
		st, err := c.resolveOne(ctx, accessURL)
		if err != nil {
			return "", nil, fmt.Errorf("row %d (%s): %w", i, accessURL, err)
		}
		if i == 0 {
			endpoint = st.Endpoint
		} else if st.Endpoint != endpoint {
			return "", nil, fmt.Errorf("%w: row %d resolved %s, expected %s", common.ErrEndpointMismatch, i, st.Endpoint, endpoint)
		}
		tokens = append(tokens, st.Token)
	}
	c.logger.Info("casda.stage.resolved", "files", len(tokens), "endpoint", endpoint, "service", c.cfg.Service)
	return endpoint, tokens, nil
}

func (c *Client) resolveOne(ctx context.Context, accessURL string) (datalink.ServiceToken, error) {
	resp, err := c.transport.Send(ctx, transport.Request{
		Method:        http.MethodGet,
		URL:           accessURL,
		Authenticated: true,
	})
	if err != nil {
		return datalink.ServiceToken{}, err
	}
	doc, err := votable.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return datalink.ServiceToken{}, err
	}
	res, err := datalink.Resolve(doc, c.cfg.Service)
	if err != nil {
		return datalink.ServiceToken{}, err
	}
	return res.ServiceToken()
}
