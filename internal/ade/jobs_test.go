package ade_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/port"
)

func fastPoll() ade.PollOptions {
	return ade.PollOptions{Interval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Timeout: 5 * time.Second}
}

func TestClient_ParseAsync_InlineData(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/ade/parse/jobs":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "dpt-2-latest", r.FormValue("model"))
			_, _ = w.Write([]byte(`{"job_id":"job-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/ade/parse/jobs/job-1":
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"job_id":"job-1","status":"processing","progress":0.5,"received_at":1735689600000}`))
				return
			}
			_, _ = w.Write([]byte(`{"job_id":"job-1","status":"completed","progress":1,"data":` + parseResponse + `}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	var seen []float64
	opts := fastPoll()
	opts.OnProgress = func(j *domain.RemoteJob) { seen = append(seen, j.Progress) }

	res, err := c.ParseAsync(context.Background(), port.ParseInput{Document: []byte("%PDF")}, opts)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
	assert.Equal(t, []float64{0.5, 0.5, 1}, seen)
}

func TestClient_Poll_IntervalGrowsToCap(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n < 5 {
			_, _ = w.Write([]byte(`{"job_id":"job-3","status":"processing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"job_id":"job-3","status":"completed","data":` + parseResponse + `}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	opts := ade.PollOptions{Interval: 100 * time.Millisecond, MaxInterval: 200 * time.Millisecond, Timeout: 5 * time.Second}
	job, err := c.Poll(context.Background(), "job-3", opts)
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteJobCompleted, job.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 5)
	// 100ms, then 150ms, then 225ms capped to 200ms, then 200ms.
	want := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}
	for i, w := range want {
		gap := stamps[i+1].Sub(stamps[i])
		assert.GreaterOrEqual(t, gap, w, "gap %d", i)
	}
	assert.Less(t, stamps[4].Sub(stamps[3]), 300*time.Millisecond)
}

func TestClient_GetParseJob_FetchesOutputURL(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ade/parse/jobs/job-2":
			_, _ = w.Write([]byte(`{"job_id":"job-2","status":"completed","received_at":1735689600000,"output_url":"` + server.URL + `/output/job-2.json"}`))
		case "/output/job-2.json":
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(parseResponse))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	job, err := c.GetParseJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteJobCompleted, job.Status)
	assert.Equal(t, time.UnixMilli(1735689600000).UTC(), job.CreatedAt)
	require.NotNil(t, job.Result)
	assert.Equal(t, "invoice.pdf", job.Result.Metadata.FileName)
}

func TestClient_WaitForParseJob_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"job-3","status":"failed","failure_reason":"password protected"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	c.SetPollOptions(fastPoll())
	job, err := c.WaitForParseJob(context.Background(), "job-3")
	require.Error(t, err)
	require.NotNil(t, job)

	var jobErr *ade.JobFailedError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, "password protected", jobErr.Reason)
	assert.True(t, errors.Is(err, domain.ErrDocumentParse))
	assert.False(t, ade.IsRetryable(err))
}

func TestClient_Poll_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"job-4","status":"pending"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	opts := fastPoll()
	opts.Timeout = 30 * time.Millisecond
	_, err := c.Poll(context.Background(), "job-4", opts)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_ListParseJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ade/parse/jobs", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "completed", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"jobs":[{"job_id":"a","status":"completed","progress":1},{"job_id":"b","status":"completed","progress":1}],"has_more":true}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	list, err := c.ListParseJobs(context.Background(), ade.ListJobsOptions{Page: 2, Status: domain.RemoteJobCompleted})
	require.NoError(t, err)
	assert.True(t, list.HasMore)
	require.Len(t, list.Jobs, 2)
	assert.Equal(t, "b", list.Jobs[1].JobID)
}

func TestClient_GetParseJob_RequiresID(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 0)
	_, err := c.GetParseJob(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}
