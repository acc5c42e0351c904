package pool

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/dashboard"
	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/history"
	"github.com/abdul-hamid-achik/relay/packages/http"
	"github.com/abdul-hamid-achik/relay/packages/manager"
	"github.com/abdul-hamid-achik/relay/packages/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFunc func(ctx context.Context, req *request.Model) (*http.Response, error)

func (f executorFunc) Execute(ctx context.Context, req *request.Model) (*http.Response, error) {
	return f(ctx, req)
}

func okExecutor() executorFunc {
	return func(ctx context.Context, req *request.Model) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Status: "200 OK", Body: []byte(`{"ok":true}`), Size: 11}, nil
	}
}

// gatedExecutor blocks each call until release is closed or ctx ends.
func gatedExecutor(release <-chan struct{}) executorFunc {
	return func(ctx context.Context, req *request.Model) (*http.Response, error) {
		select {
		case <-release:
			return &http.Response{StatusCode: 200, Status: "200 OK"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type outcomes struct {
	mu   sync.Mutex
	list []manager.Outcome
}

func (o *outcomes) observe(out manager.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, out)
}

func (o *outcomes) byID(id string) (manager.Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, out := range o.list {
		if out.ManagerID == id {
			return out, true
		}
	}
	return manager.Outcome{}, false
}

func jsonRequest() *request.Model {
	return request.NewRaw(request.MethodPost, "http://api.test/items", request.ModeJSON, `{"name":"widget"}`)
}

func TestPool_SubmitCompletes(t *testing.T) {
	store := history.NewMemoryStore()
	p := New(okExecutor(), store)
	defer p.Close()

	seen := &outcomes{}
	id, err := p.Submit("tab1", jsonRequest(), seen.observe)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	p.Wait()

	out, ok := seen.byID(id)
	require.True(t, ok)
	assert.Equal(t, manager.Completed, out.State)
	assert.Equal(t, 200, out.Response.StatusCode)

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tab1", records[0].SlotKey)
	assert.Equal(t, id, records[0].ManagerID)
	assert.Equal(t, manager.Completed, records[0].State)
	assert.Equal(t, "application/json", records[0].Request.ContentType)
	assert.Equal(t, 0, p.Len())
}

func TestPool_DoubleSubmitCancelsFirst(t *testing.T) {
	store := history.NewMemoryStore()
	release := make(chan struct{})
	p := New(gatedExecutor(release), store)
	defer p.Close()

	seen := &outcomes{}
	first, err := p.Submit("tab1", jsonRequest(), seen.observe)
	require.NoError(t, err)
	second, err := p.Submit("tab1", jsonRequest(), seen.observe)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	active, ok := p.Active("tab1")
	assert.True(t, ok)
	assert.Equal(t, second, active)

	close(release)
	p.Wait()

	out, ok := seen.byID(first)
	require.True(t, ok)
	assert.Equal(t, manager.Cancelled, out.State)

	out, ok = seen.byID(second)
	require.True(t, ok)
	assert.Equal(t, manager.Completed, out.State)

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second, records[0].ManagerID)
}

func TestPool_AtMostOneLivePerSlot(t *testing.T) {
	release := make(chan struct{})
	p := New(gatedExecutor(release), history.NewMemoryStore())

	var (
		mu        sync.Mutex
		managers  []*manager.Manager
		violation atomic.Bool
	)
	p.created = func(slot string, m *manager.Manager) {
		mu.Lock()
		defer mu.Unlock()
		for _, existing := range managers {
			if !existing.State().Terminal() {
				violation.Store(true)
			}
		}
		managers = append(managers, m)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit("tab1", jsonRequest(), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, violation.Load(), "two live managers on one slot")
	assert.Equal(t, 1, p.Len())

	live := 0
	mu.Lock()
	for _, m := range managers {
		if !m.State().Terminal() {
			live++
		}
	}
	mu.Unlock()
	assert.Equal(t, 1, live)

	close(release)
	p.Close()
}

func TestPool_SlotsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	p := New(gatedExecutor(release), nil)

	a, err := p.Submit("tab1", jsonRequest(), nil)
	require.NoError(t, err)
	b, err := p.Submit("tab2", jsonRequest(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	gotA, _ := p.Active("tab1")
	gotB, _ := p.Active("tab2")
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)

	close(release)
	p.Wait()
	assert.Equal(t, 0, p.Len())
	p.Close()
}

func TestPool_Cancel(t *testing.T) {
	store := history.NewMemoryStore()
	p := New(gatedExecutor(make(chan struct{})), store)
	defer p.Close()

	seen := &outcomes{}
	id, err := p.Submit("tab1", jsonRequest(), seen.observe)
	require.NoError(t, err)

	assert.True(t, p.Cancel("tab1"))
	assert.False(t, p.Cancel("tab1"))
	assert.False(t, p.Cancel("nope"))
	p.Wait()

	out, ok := seen.byID(id)
	require.True(t, ok)
	assert.Equal(t, manager.Cancelled, out.State)

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPool_CancelAfterTerminal(t *testing.T) {
	p := New(okExecutor(), nil)
	defer p.Close()

	_, err := p.Submit("tab1", jsonRequest(), nil)
	require.NoError(t, err)
	p.Wait()

	assert.False(t, p.Cancel("tab1"))
	_, ok := p.Active("tab1")
	assert.False(t, ok)
}

func TestPool_ObserverRunsBeforeHistory(t *testing.T) {
	store := history.NewMemoryStore()
	p := New(okExecutor(), store)
	defer p.Close()

	var recordsAtObserve atomic.Int32
	recordsAtObserve.Store(-1)
	_, err := p.Submit("tab1", jsonRequest(), func(o manager.Outcome) {
		records, _ := store.Recent(context.Background(), 0)
		recordsAtObserve.Store(int32(len(records)))
	})
	require.NoError(t, err)
	p.Wait()

	assert.Equal(t, int32(0), recordsAtObserve.Load())
	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPool_WithoutHistory(t *testing.T) {
	store := history.NewMemoryStore()
	p := New(okExecutor(), store)
	defer p.Close()

	_, err := p.Submit("tab1", jsonRequest(), nil, WithoutHistory())
	require.NoError(t, err)
	p.Wait()

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPool_DispatchTimeout(t *testing.T) {
	store := history.NewMemoryStore()
	p := New(gatedExecutor(make(chan struct{})), store, WithTimeout(time.Minute))
	defer p.Close()

	seen := &outcomes{}
	id, err := p.Submit("tab1", jsonRequest(), seen.observe, WithDispatchTimeout(20*time.Millisecond))
	require.NoError(t, err)
	p.Wait()

	out, ok := seen.byID(id)
	require.True(t, ok)
	assert.Equal(t, manager.Failed, out.State)
	assert.Equal(t, failure.KindTimeout, out.Failure.Kind)

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "timeout", records[0].FailureKind)
}

func TestPool_Close(t *testing.T) {
	p := New(gatedExecutor(make(chan struct{})), nil)

	seen := &outcomes{}
	id, err := p.Submit("tab1", jsonRequest(), seen.observe)
	require.NoError(t, err)

	p.Close()
	out, ok := seen.byID(id)
	require.True(t, ok)
	assert.Equal(t, manager.Cancelled, out.State)

	_, err = p.Submit("tab1", jsonRequest(), nil)
	assert.ErrorIs(t, err, ErrClosed)
	p.Close()
}

func TestPool_SubmitNilRequest(t *testing.T) {
	release := make(chan struct{})
	p := New(gatedExecutor(release), nil)
	defer p.Close()

	live, err := p.Submit("tab1", jsonRequest(), nil)
	require.NoError(t, err)

	_, err = p.Submit("tab1", nil, nil)
	assert.ErrorIs(t, err, ErrNilRequest)

	id, ok := p.Active("tab1")
	require.True(t, ok)
	assert.Equal(t, live, id)
	close(release)
}

func TestPool_Throttle(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := executorFunc(func(ctx context.Context, req *request.Model) (*http.Response, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &http.Response{StatusCode: 200}, nil
	})

	p := New(exec, nil, WithLimits(Limits{MaxConcurrent: 1}))
	defer p.Close()

	for _, slot := range []string{"a", "b", "c"} {
		_, err := p.Submit(slot, jsonRequest(), nil)
		require.NoError(t, err)
	}
	p.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

// TestPool_DashboardRoundTrip drives every content type from a saved tab
// through dispatch and history and back to the tab.
func TestPool_DashboardRoundTrip(t *testing.T) {
	body := func(s string) *string { return &s }
	states := []dashboard.State{
		{Method: "POST", Target: "http://h/plain", ContentType: "text/plain", Body: body("hello")},
		{Method: "POST", Target: "http://h/json", ContentType: "application/json", Body: body(`{"a":1}`),
			Headers: []request.Tuple{{Key: "X-Trace", Value: "1"}}},
		{Method: "PUT", Target: "http://h/xml", ContentType: "application/xml", Body: body("<a/>")},
		{Method: "POST", Target: "http://h/html", ContentType: "text/html", Body: body("<b>x</b>")},
		{Method: "POST", Target: "http://h/bin", ContentType: "application/octet-stream", Body: body("/data/blob.bin")},
		{Method: "POST", Target: "http://h/form", ContentType: "multipart/form-data",
			StringTuples: []request.Tuple{{Key: "name", Value: "alice"}},
			FileTuples:   []request.Tuple{{Key: "avatar", Value: "/data/a.png"}}},
		{Method: "PATCH", Target: "http://h/url", ContentType: "application/x-www-form-urlencoded",
			StringTuples: []request.Tuple{{Key: "z", Value: "1"}, {Key: "a", Value: "2"}}},
	}
	require.Len(t, states, len(request.ContentTypes()))

	store, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	p := New(okExecutor(), store)
	defer p.Close()

	ids := make(map[string]dashboard.State)
	for i, state := range states {
		model, err := state.Model()
		require.NoError(t, err)

		id, err := p.Submit(string(rune('a'+i)), model, nil)
		require.NoError(t, err)
		ids[id] = state
	}
	p.Wait()

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, len(states))

	for _, rec := range records {
		want, ok := ids[rec.ManagerID]
		require.True(t, ok)
		assert.Equal(t, want, rec.DashboardState(), "content type %s", want.ContentType)

		sel, blank := dashboard.Restore(rec.DashboardState(), nil)
		assert.False(t, blank)
		rebuilt, err := sel.Build(request.Method(want.Method), want.Target, want.Headers)
		require.NoError(t, err)
		assert.Equal(t, want, dashboard.FromModel(rebuilt))
	}
}

// TestPool_JSONScenario posts a JSON body to a live server and checks the
// outcome and history entry.
func TestPool_JSONScenario(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(nethttp.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer server.Close()

	store := history.NewMemoryStore()
	p := New(http.NewClient(), store)
	defer p.Close()

	model := request.NewRaw(request.MethodPost, server.URL+"/items", request.ModeJSON, `{"name":"widget"}`)
	seen := &outcomes{}
	id, err := p.Submit("tab1", model, seen.observe)
	require.NoError(t, err)
	p.Wait()

	out, ok := seen.byID(id)
	require.True(t, ok)
	require.Equal(t, manager.Completed, out.State)
	assert.Equal(t, 201, out.Response.StatusCode)

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 201, records[0].StatusCode)
	assert.Equal(t, int64(len(`{"id":1}`)), records[0].Size)
}

// TestPool_MultipartMissingFileScenario sends a form whose file is gone:
// the request fails before reaching the server and is recorded as such.
func TestPool_MultipartMissingFileScenario(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	store := history.NewMemoryStore()
	p := New(http.NewClient(), store)
	defer p.Close()

	model := request.NewMultipart(request.MethodPost, server.URL+"/upload",
		[]request.Tuple{{Key: "title", Value: "report"}},
		[]request.Tuple{{Key: "doc", Value: filepath.Join(t.TempDir(), "missing.pdf")}})

	seen := &outcomes{}
	id, err := p.Submit("tab1", model, seen.observe)
	require.NoError(t, err)
	p.Wait()

	out, ok := seen.byID(id)
	require.True(t, ok)
	assert.Equal(t, manager.Failed, out.State)
	require.NotNil(t, out.Failure)
	assert.Equal(t, failure.KindBodyRead, out.Failure.Kind)
	assert.Zero(t, hits.Load())

	records, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "body_read_error", records[0].FailureKind)
}
