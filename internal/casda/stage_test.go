package casda_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

func TestStageData_EndToEnd(t *testing.T) {
	a := newFakeArchive(t)
	endpoint := a.url("/async")
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", endpoint)
	l2 := a.addLink("/datalink/2", "cutout_service", "T2", endpoint)
	a.phases = []string{"PENDING", "EXECUTING", "COMPLETED"}
	a.results = []string{
		a.url("/files/image%201.fits"),
		a.url("/files/image%201.fits.checksum"),
	}
	sl := &sleepCounter{}
	c := newClient(a, true, uws.WithSleeper(sl.sleep))

	urls, err := c.StageData(context.Background(), []string{l1, l2})
	require.NoError(t, err)
	assert.Equal(t, []string{a.url("/files/image 1.fits"), a.url("/files/image 1.fits.checksum")}, urls)

	assert.Equal(t, []string{"T1", "T2"}, a.submittedIDs())
	assert.Equal(t, 2, sl.count())
	assert.Equal(t, 1, a.hitCount(http.MethodPost+" /async"))
	assert.Equal(t, 1, a.hitCount(http.MethodPost+" /async/job-1/phase"))
	assert.Zero(t, a.anonymous(), "every staging request carries credentials")
}

func TestStage_ReportsJobAndPhase(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	a.phases = []string{"ERROR"}
	c := newClient(a, true, uws.WithSleeper((&sleepCounter{}).sleep))

	res, err := c.Stage(context.Background(), []string{l1})
	require.NoError(t, err)
	assert.Equal(t, a.url("/async/job-1"), res.JobLocation)
	assert.Equal(t, constants.PhaseError, res.Phase)
	assert.Empty(t, res.URLs)
}

func TestStage_RequiresCredentials(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	c := newClient(a, false)

	_, err := c.StageData(context.Background(), []string{l1})
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)
	assert.Zero(t, a.requests())
}

func TestStage_EndpointMismatch(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	l2 := a.addLink("/datalink/2", "cutout_service", "T2", a.url("/other-async"))
	c := newClient(a, true)

	_, err := c.StageData(context.Background(), []string{l1, l2})
	assert.ErrorIs(t, err, common.ErrEndpointMismatch)
	assert.Zero(t, a.hitCount(http.MethodPost+" /async"))
}

func TestStage_NoTokens(t *testing.T) {
	a := newFakeArchive(t)
	c := newClient(a, true)

	_, err := c.StageData(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrNoTokens)
	assert.Zero(t, a.requests())
}

func TestStage_UnresolvedService(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	l2 := a.addLink("/datalink/2", "async_service", "T2", a.url("/async"))
	c := newClient(a, true)

	_, err := c.StageData(context.Background(), []string{l1, l2})
	assert.ErrorIs(t, err, common.ErrUnresolvedService)
	assert.Contains(t, err.Error(), "row 1")
	assert.Zero(t, a.hitCount(http.MethodPost+" /async"))
}

func TestStage_DatalinkHTTPError(t *testing.T) {
	a := newFakeArchive(t)
	c := newClient(a, true)

	_, err := c.StageData(context.Background(), []string{a.url("/datalink/missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStageWithHooks(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	a.phases = []string{"COMPLETED"}
	a.results = []string{a.url("/files/a.fits")}
	c := newClient(a, true, uws.WithSleeper((&sleepCounter{}).sleep))

	var (
		gotEndpoint string
		gotTokens   int
		gotJob      uws.Job
	)
	res, err := c.StageWithHooks(context.Background(), []string{l1}, casda.StageHooks{
		Resolved: func(_ context.Context, endpoint string, tokens int) error {
			gotEndpoint, gotTokens = endpoint, tokens
			return nil
		},
		JobCreated: func(_ context.Context, job uws.Job) error {
			gotJob = job
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, a.url("/async"), gotEndpoint)
	assert.Equal(t, 1, gotTokens)
	assert.Equal(t, res.JobLocation, gotJob.Location)
	assert.Equal(t, []string{a.url("/files/a.fits")}, res.URLs)
}

func TestStageWithHooks_HookErrorAborts(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	c := newClient(a, true)
	stop := errors.New("ledger unavailable")

	_, err := c.StageWithHooks(context.Background(), []string{l1}, casda.StageHooks{
		Resolved: func(context.Context, string, int) error { return stop },
	})
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, a.hitCount(http.MethodPost+" /async"))
}

func TestStage_CancelledWhilePolling(t *testing.T) {
	a := newFakeArchive(t)
	l1 := a.addLink("/datalink/1", "cutout_service", "T1", a.url("/async"))
	a.phases = []string{"EXECUTING"}
	ctx, cancel := context.WithCancel(context.Background())
	c := newClient(a, true, uws.WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	res, err := c.Stage(ctx, []string{l1})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, constants.PhaseExecuting, res.Phase)
	assert.Equal(t, a.url("/async/job-1"), res.JobLocation)
}
