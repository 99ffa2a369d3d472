// Package dispatch sends the payload batch of one operation to every
// resolved path and records the answers.
package dispatch

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/openapi-fuzz/internal/assemble"
	"github.com/mark3labs/openapi-fuzz/internal/pathres"
	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/report"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

// Doer sends a request; *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, cred transport.Credentials, req transport.Request) (*transport.Response, error)
}

type Option func(*Dispatcher)

// WithConcurrency caps the requests in flight per batch. n <= 0 means no
// cap.
func WithConcurrency(n int) Option { return func(d *Dispatcher) { d.concurrency = n } }

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// Dispatcher fans batches out over HTTP.
type Dispatcher struct {
	doer        Doer
	report      *report.Report
	baseURL     string
	concurrency int
	logger      *zap.Logger
}

func New(doer Doer, rep *report.Report, baseURL string, opts ...Option) *Dispatcher {
	d := &Dispatcher{doer: doer, report: rep, baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// planned is one request of a batch.
type planned struct {
	realPath string
	body     payload.Object
	query    payload.Object
}

// plan lists the requests a batch expands to. For every real path, each
// body variant is sent with the baseline query, then each remaining query
// variant with the baseline body. A batch with neither sends one bare
// request per path.
func plan(batch *assemble.Batch, template string) []planned {
	paths := batch.RealPaths
	if len(paths) == 0 {
		paths = []string{template}
	}
	var baseBody, baseQuery payload.Object
	if len(batch.ReqBody) > 0 {
		baseBody = batch.ReqBody[0]
	}
	if len(batch.Query) > 0 {
		baseQuery = batch.Query[0]
	}

	var out []planned
	for _, p := range paths {
		if len(batch.ReqBody) == 0 && len(batch.Query) == 0 {
			out = append(out, planned{realPath: p})
			continue
		}
		for _, b := range batch.ReqBody {
			out = append(out, planned{realPath: p, body: b, query: baseQuery})
		}
		queries := batch.Query
		if len(batch.ReqBody) > 0 && len(queries) > 0 {
			queries = queries[1:]
		}
		for _, q := range queries {
			out = append(out, planned{realPath: p, body: baseBody, query: q})
		}
	}
	return out
}

// Send issues every request of batch concurrently and waits for all of
// them. Each answer, whatever its status, becomes a report entry; requests
// that got no answer are logged and dropped. It returns the number of
// answered requests.
func (d *Dispatcher) Send(ctx context.Context, cred transport.Credentials, template string, method spec.HttpMethod, batch *assemble.Batch) int {
	if batch == nil {
		batch = &assemble.Batch{}
	}
	reqs := plan(batch, template)
	d.logger.Info("sending fuzzing payloads",
		zap.String("method", method.Upper()),
		zap.String("path", template),
		zap.Int("requests", len(reqs)))

	var answered int64
	g, gctx := errgroup.WithContext(ctx)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for _, pr := range reqs {
		pr := pr
		g.Go(func() error {
			resp, err := d.doer.Do(gctx, cred, transport.Request{
				Method: method.Upper(),
				URL:    d.baseURL + pr.realPath,
				Body:   pr.body,
				Query:  pr.query,
			})
			if err != nil {
				d.logger.Error("request failed",
					zap.String("method", method.Upper()),
					zap.String("path", pr.realPath),
					zap.Error(err))
				return nil
			}
			atomic.AddInt64(&answered, 1)
			if d.report != nil {
				d.report.Add(report.Entry{
					Path:       template,
					Method:     method,
					StatusCode: resp.StatusCode,
					PathParams: pathres.ExtractPathParams(template, pr.realPath),
					ReqBody:    pr.body,
					Query:      pr.query,
					Response:   resp.Body,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(answered)
}
