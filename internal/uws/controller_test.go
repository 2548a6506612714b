package uws_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

// scriptedSender answers GETs from a phase script and records every request.
type scriptedSender struct {
	mu       sync.Mutex
	phases   []string
	getErr   error
	finalURL string
	requests []transport.Request
}

func (s *scriptedSender) Send(_ context.Context, r transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)

	if r.Method != http.MethodGet {
		final := r.URL
		if s.finalURL != "" && r.Form == nil {
			final = s.finalURL
		}
		return &transport.Response{StatusCode: http.StatusOK, FinalURL: final}, nil
	}
	if s.getErr != nil {
		return nil, s.getErr
	}
	if len(s.phases) == 0 {
		return nil, errors.New("script exhausted")
	}
	phase := s.phases[0]
	if len(s.phases) > 1 {
		s.phases = s.phases[1:]
	}
	body := `<uws:job xmlns:uws="http://www.ivoa.net/xml/UWS/v1.0"></uws:job>`
	if phase != "" {
		body = jobXML(phase)
	}
	return &transport.Response{StatusCode: http.StatusOK, FinalURL: r.URL, Body: []byte(body)}, nil
}

func (s *scriptedSender) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

type countingSleeper struct {
	calls     int
	durations []time.Duration
	advance   func(time.Duration)
	err       error
}

func (c *countingSleeper) sleep(_ context.Context, d time.Duration) error {
	c.calls++
	c.durations = append(c.durations, d)
	if c.advance != nil {
		c.advance(d)
	}
	return c.err
}

var job = uws.Job{Location: "https://archive/data/async/j1"}

func TestWait_TerminalOnFirstPoll(t *testing.T) {
	sender := &scriptedSender{phases: []string{"COMPLETED"}}
	sl := &countingSleeper{}
	c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep))

	phase, err := c.Wait(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, constants.PhaseCompleted, phase)
	assert.Equal(t, 1, sender.count(http.MethodGet))
	assert.Zero(t, sl.calls)
}

func TestWait_SleepsOncePerNonTerminalReading(t *testing.T) {
	sender := &scriptedSender{phases: []string{"PENDING", "QUEUED", "EXECUTING", "EXECUTING", "COMPLETED"}}
	sl := &countingSleeper{}
	c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep), uws.WithPollInterval(5*time.Second))

	phase, err := c.Wait(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, constants.PhaseCompleted, phase)
	assert.Equal(t, 4, sl.calls)
	assert.Equal(t, 5, sender.count(http.MethodGet))
	for _, d := range sl.durations {
		assert.Equal(t, 5*time.Second, d)
	}
	for _, r := range sender.requests {
		assert.False(t, r.Cache, "job polls must never be cached")
		assert.True(t, r.Authenticated)
	}
}

func TestWait_FailurePhasesAreReturned(t *testing.T) {
	for _, p := range []string{"ERROR", "ABORTED", "HELD", "SUSPENDED", "UNKNOWN", "ARCHIVED"} {
		t.Run(p, func(t *testing.T) {
			sender := &scriptedSender{phases: []string{"EXECUTING", p}}
			sl := &countingSleeper{}
			c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep))

			phase, err := c.Wait(context.Background(), job)
			require.NoError(t, err)
			assert.Equal(t, constants.Phase(p), phase)
			assert.Equal(t, 1, sl.calls)
		})
	}
}

func TestWait_MissingPhase(t *testing.T) {
	sender := &scriptedSender{phases: []string{"EXECUTING", ""}}
	sl := &countingSleeper{}
	c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep))

	phase, err := c.Wait(context.Background(), job)
	assert.ErrorIs(t, err, common.ErrMalformedDocument)
	assert.Equal(t, constants.PhaseExecuting, phase)
}

func TestWait_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	sender := &scriptedSender{getErr: boom}
	c := uws.NewController(sender, nil, uws.WithSleeper((&countingSleeper{}).sleep))

	_, err := c.Wait(context.Background(), job)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sender.count(http.MethodGet))
}

func TestWait_Cancelled(t *testing.T) {
	sender := &scriptedSender{phases: []string{"EXECUTING"}}
	c := uws.NewController(sender, nil, uws.WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Wait(ctx, job)
		done <- err
	}()
	require.Eventually(t, func() bool { return sender.count(http.MethodGet) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
	assert.Equal(t, 1, sender.count(http.MethodGet))
	assert.Zero(t, sender.count(http.MethodPost), "cancellation must not touch the remote job")
}

func TestWait_MaxWait(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sl := &countingSleeper{advance: func(d time.Duration) { now = now.Add(d) }}
	sender := &scriptedSender{phases: []string{"QUEUED"}}
	c := uws.NewController(sender, nil,
		uws.WithSleeper(sl.sleep),
		uws.WithClock(clock),
		uws.WithPollInterval(20*time.Second),
		uws.WithMaxWait(time.Minute),
	)

	phase, err := c.Wait(context.Background(), job)
	assert.ErrorIs(t, err, common.ErrPollTimeout)
	assert.Equal(t, constants.PhaseQueued, phase)
	assert.Equal(t, 4, sender.count(http.MethodGet))
	assert.Equal(t, 3, sl.calls)
}

func TestWait_SleeperErrorStopsLoop(t *testing.T) {
	stop := errors.New("stop")
	sender := &scriptedSender{phases: []string{"PENDING"}}
	sl := &countingSleeper{err: stop}
	c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep))

	phase, err := c.Wait(context.Background(), job)
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, constants.PhasePending, phase)
	assert.Equal(t, 1, sl.calls)
}

func TestCreateJob(t *testing.T) {
	sender := &scriptedSender{finalURL: "https://archive/data/async/j42/"}
	c := uws.NewController(sender, nil)

	got, err := c.CreateJob(context.Background(), "https://archive/data/async", []string{"T2", "T1", "T2"})
	require.NoError(t, err)
	assert.Equal(t, "https://archive/data/async/j42", got.Location)

	require.Len(t, sender.requests, 1)
	r := sender.requests[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "https://archive/data/async", r.URL)
	assert.Equal(t, []string{"T2", "T1", "T2"}, r.Params["ID"])
	assert.True(t, r.Authenticated)
	assert.False(t, r.Cache)
}

func TestCreateJob_Rejected(t *testing.T) {
	sender := &scriptedSender{}
	c := uws.NewController(sender, nil)

	_, err := c.CreateJob(context.Background(), "https://archive/data/async", nil)
	assert.ErrorIs(t, err, common.ErrNoTokens)

	_, err = c.CreateJob(context.Background(), " ", []string{"T1"})
	assert.ErrorIs(t, err, common.ErrUnresolvedService)

	assert.Empty(t, sender.requests)
}

func TestRunToCompletion(t *testing.T) {
	sender := &scriptedSender{phases: []string{"PENDING", "COMPLETED"}}
	sl := &countingSleeper{}
	c := uws.NewController(sender, nil, uws.WithSleeper(sl.sleep))

	phase, err := c.RunToCompletion(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, constants.PhaseCompleted, phase)

	require.NotEmpty(t, sender.requests)
	start := sender.requests[0]
	assert.Equal(t, http.MethodPost, start.Method)
	assert.Equal(t, job.Location+"/phase", start.URL)
	assert.Equal(t, "RUN", start.Form.Get("phase"))
	assert.Equal(t, 1, sl.calls)
}

func TestNewController_Defaults(t *testing.T) {
	c := uws.NewController(&scriptedSender{}, nil, uws.WithPollInterval(0))
	assert.Equal(t, uws.DefaultPollInterval, c.PollInterval())
}
