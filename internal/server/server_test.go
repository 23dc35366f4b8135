package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/metrics"
)

type fakeService struct {
	status     core.Status
	processErr error
	refreshErr error
	gotMax     int

	// running, when set, is closed once a run starts; the run then holds
	// until its context ends and reports why on cancelled.
	running   chan struct{}
	cancelled chan error
}

func (f *fakeService) ProcessOnce(ctx context.Context, maxEmails int) (*core.BatchReport, error) {
	f.gotMax = maxEmails
	if f.running != nil {
		close(f.running)
		<-ctx.Done()
		f.cancelled <- ctx.Err()
	}
	report := core.NewBatchReport("run-1", time.Now())
	if f.processErr != nil {
		return report, f.processErr
	}
	report.Fetched = 1
	report.Add(core.WorkflowResult{MessageID: "m1", Outcome: core.OutcomeSent})
	return report, nil
}

func (f *fakeService) RefreshPolicies(context.Context) error { return f.refreshErr }

func (f *fakeService) Status(context.Context) core.Status { return f.status }

func newTestServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	m := metrics.New()
	m.ObserveBatch(nil)
	s := New(svc, m.Handler(), config.ServerConfig{}, zap.NewNop())
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	svc := &fakeService{status: core.Status{
		Components:  map[string]bool{"mail_gateway": true, "policy_index": true},
		IndexChunks: 12,
	}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st core.Status
	decode(t, resp, &st)
	assert.Equal(t, 12, st.IndexChunks)

	svc.status.Components["policy_index"] = false
	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProcess(t *testing.T) {
	t.Run("returns the report", func(t *testing.T) {
		svc := &fakeService{}
		srv := newTestServer(t, svc)
		resp, err := http.Post(srv.URL+"/process?max=5", "", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body processResponse
		decode(t, resp, &body)
		require.NotNil(t, body.Report)
		assert.Equal(t, 1, body.Report.Sent)
		assert.Equal(t, 5, svc.gotMax)
	})

	t.Run("fetch failure is a bad gateway", func(t *testing.T) {
		svc := &fakeService{processErr: core.NewStageError(core.StageFetch, core.KindFetchFailed, errors.New("connection reset"))}
		srv := newTestServer(t, svc)
		resp, err := http.Post(srv.URL+"/process", "", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		var body processResponse
		decode(t, resp, &body)
		assert.Contains(t, body.Error, "connection reset")
		assert.Equal(t, 0, svc.gotMax)
	})

	t.Run("rejects a bad max", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{})
		resp, err := http.Post(srv.URL+"/process?max=lots", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("method not allowed", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{})
		resp, err := http.Get(srv.URL + "/process")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t, &fakeService{status: core.Status{IndexVersion: 3, IndexChunks: 9}})
	resp, err := http.Post(srv.URL+"/refresh", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	decode(t, resp, &body)
	assert.Equal(t, 3, body["index_version"])

	failing := newTestServer(t, &fakeService{refreshErr: errors.New("no policy documents")})
	resp, err = http.Post(failing.URL+"/refresh", "", nil)
	require.NoError(t, err)
	var errBody map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "index_build_failed", errBody["error"])
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `email_responder_batches_total{result="completed"} 1`)
}

func TestStopCancelsRunningProcess(t *testing.T) {
	svc := &fakeService{running: make(chan struct{}), cancelled: make(chan error, 1)}
	s := New(svc, nil, config.ServerConfig{}, zap.NewNop())
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(l) }()

	go func() {
		resp, err := http.Post("http://"+l.Addr().String()+"/process", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-svc.running

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, <-svc.cancelled, context.Canceled)
}
