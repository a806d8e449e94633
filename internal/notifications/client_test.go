package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	path, title, priority, body string
}

func newServer(t *testing.T, status int) (*httptest.Server, chan received, *int32) {
	t.Helper()
	ch := make(chan received, 10)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		ch <- received{r.URL.Path, r.Header.Get("Title"), r.Header.Get("Priority"), string(body)}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch, &calls
}

func TestNotifyRunPostsSummary(t *testing.T) {
	srv, ch, _ := newServer(t, http.StatusOK)
	c := NewClient(srv.URL+"/", "jobs", true, PriorityDefault, 0, time.Millisecond, time.Millisecond)

	err := c.NotifyRun(context.Background(), RunSummary{
		Operation: "add_jobs", OperationID: "abc", Tab: "Sheet1", Added: 2, Formatting: true,
	})
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, "/jobs", got.path)
	assert.Equal(t, "Sheet sync: add_jobs", got.title)
	assert.Equal(t, PriorityDefault, got.priority)
	assert.Contains(t, got.body, "Added 2 row(s)")
	assert.Contains(t, got.body, "Run abc")
	assert.NotContains(t, got.body, "formatting skipped")

	sent, failed, _ := c.GetMetrics()
	assert.EqualValues(t, 1, sent)
	assert.Zero(t, failed)
}

func TestNotifyRunDuplicatesAreUrgent(t *testing.T) {
	srv, ch, _ := newServer(t, http.StatusOK)
	c := NewClient(srv.URL, "jobs", true, PriorityDefault, 0, time.Millisecond, time.Millisecond)

	require.NoError(t, c.NotifyRun(context.Background(), RunSummary{
		Operation: "add_jobs", Added: 1, Formatting: true, NewDuplicates: []string{"555"},
	}))
	got := <-ch
	assert.Equal(t, PriorityUrgent, got.priority)
	assert.Contains(t, got.body, "New duplicate job ids: 555")
}

func TestNotifyRunSkipsEmptyRuns(t *testing.T) {
	_, _, calls := newServer(t, http.StatusOK)
	c := NewClient("http://127.0.0.1:1", "jobs", true, PriorityDefault, 0, time.Millisecond, time.Millisecond)

	require.NoError(t, c.NotifyRun(context.Background(), RunSummary{Operation: "refresh_jobs"}))
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestDisabledClientSendsNothing(t *testing.T) {
	srv, _, calls := newServer(t, http.StatusOK)
	c := NewClient(srv.URL, "jobs", false, "", 0, time.Millisecond, time.Millisecond)

	require.NoError(t, c.NotifyRun(context.Background(), RunSummary{Operation: "add_jobs", Added: 1}))
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	srv, _, calls := newServer(t, http.StatusBadRequest)
	c := NewClient(srv.URL, "jobs", true, "", 3, time.Millisecond, time.Millisecond)

	err := c.SendNotification(context.Background(), "hello")
	var ne *NotificationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "client", ne.Type)
	assert.Equal(t, http.StatusBadRequest, ne.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestServerErrorIsRetried(t *testing.T) {
	srv, _, calls := newServer(t, http.StatusServiceUnavailable)
	c := NewClient(srv.URL, "jobs", true, "", 2, time.Millisecond, time.Millisecond)

	err := c.SendNotification(context.Background(), "hello")
	var ne *NotificationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "max_retries_exceeded", ne.Type)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))

	_, failed, retries := c.GetMetrics()
	assert.EqualValues(t, 1, failed)
	assert.EqualValues(t, 2, retries)
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv, _, calls := newServer(t, http.StatusBadRequest)
	c := NewClient(srv.URL, "jobs", true, "", 0, time.Millisecond, time.Millisecond)

	for i := 0; i < 5; i++ {
		require.Error(t, c.SendNotification(context.Background(), "x"))
	}
	err := c.SendNotification(context.Background(), "x")
	var ne *NotificationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "circuit_open", ne.Type)
	assert.EqualValues(t, 5, atomic.LoadInt32(calls))
}
