package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mark3labs/openapi-fuzz/internal/assemble"
	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/report"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

func TestPlan_CombinesBodyAndQueryVariants(t *testing.T) {
	t.Parallel()
	b0, b1 := payload.Object{"b": 0.0}, payload.Object{"b": 1.0}
	q0, q1, q2 := payload.Object{"q": 0.0}, payload.Object{"q": 1.0}, payload.Object{"q": 2.0}
	batch := &assemble.Batch{
		ReqBody:   []payload.Object{b0, b1},
		Query:     []payload.Object{q0, q1, q2},
		RealPaths: []string{"/a/1", "/a/2"},
	}
	got := plan(batch, "/a/{id}")
	want := []planned{
		{"/a/1", b0, q0}, {"/a/1", b1, q0}, {"/a/1", b0, q1}, {"/a/1", b0, q2},
		{"/a/2", b0, q0}, {"/a/2", b1, q0}, {"/a/2", b0, q1}, {"/a/2", b0, q2},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(planned{})); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_EdgeBatches(t *testing.T) {
	t.Parallel()
	if got := plan(&assemble.Batch{}, "/health"); len(got) != 1 || got[0].realPath != "/health" || got[0].body != nil {
		t.Fatalf("empty batch must send one bare request, got %+v", got)
	}
	queryOnly := plan(&assemble.Batch{Query: []payload.Object{{"q": 0.0}, {"q": 1.0}}, RealPaths: []string{"/x"}}, "/x")
	if len(queryOnly) != 2 || queryOnly[0].body != nil {
		t.Fatalf("query-only batch must send every query variant without a body, got %+v", queryOnly)
	}
}

func TestSend_RecordsEveryAnswer(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		if r.URL.Query().Get("limit") == "fuzz" {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rep := report.New()
	d := New(transport.New(), rep, srv.URL+"/")
	batch := &assemble.Batch{
		Query:     []payload.Object{{"limit": 1.0}, {"limit": "fuzz"}},
		RealPaths: []string{"/users/u1"},
	}
	if n := d.Send(context.Background(), nil, "/users/{id}", spec.GET, batch); n != 2 {
		t.Fatalf("expected 2 answers, got %d", n)
	}

	sort.Strings(paths)
	if diff := cmp.Diff([]string{"GET /users/u1?limit=1", "GET /users/u1?limit=fuzz"}, paths); diff != "" {
		t.Fatalf("requests (-want +got):\n%s", diff)
	}
	p := rep.Pretty()
	if p["/users/{id}"][spec.GET]["200"].NumOfRequest != 1 || p["/users/{id}"][spec.GET]["400"].NumOfRequest != 1 {
		t.Fatalf("unexpected report: %+v", p)
	}
	if got := rep.Entries()[0].PathParams["id"]; got != "u1" {
		t.Fatalf("path params not extracted: %q", got)
	}
}

type failingDoer struct{ calls int32 }

func (f *failingDoer) Do(context.Context, transport.Credentials, transport.Request) (*transport.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func TestSend_ConnectionErrorsAreLoggedAndDropped(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	rep := report.New()
	fd := &failingDoer{}
	d := New(fd, rep, "http://unreachable", WithLogger(zap.New(core)))

	batch := &assemble.Batch{ReqBody: []payload.Object{{"a": 1.0}, {"a": 2.0}}}
	if n := d.Send(context.Background(), nil, "/p", spec.POST, batch); n != 0 {
		t.Fatalf("expected no answers, got %d", n)
	}
	if fd.calls != 2 || rep.Len() != 0 {
		t.Fatalf("calls=%d entries=%d", fd.calls, rep.Len())
	}
	if n := logs.FilterMessage("request failed").Len(); n != 2 {
		t.Fatalf("expected 2 error log lines, got %d", n)
	}
}

type gaugeDoer struct {
	inFlight, peak int32
}

func (g *gaugeDoer) Do(context.Context, transport.Credentials, transport.Request) (*transport.Response, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&g.inFlight, -1)
	return &transport.Response{StatusCode: http.StatusOK}, nil
}

func TestSend_ConcurrencyLimit(t *testing.T) {
	t.Parallel()
	gd := &gaugeDoer{}
	d := New(gd, report.New(), "http://x", WithConcurrency(2))
	bodies := make([]payload.Object, 10)
	for i := range bodies {
		bodies[i] = payload.Object{"i": float64(i)}
	}
	if n := d.Send(context.Background(), nil, "/p", spec.PUT, &assemble.Batch{ReqBody: bodies}); n != 10 {
		t.Fatalf("expected 10 answers, got %d", n)
	}
	if peak := atomic.LoadInt32(&gd.peak); peak > 2 {
		t.Fatalf("concurrency limit exceeded: peak %d", peak)
	}
}
