// Package fuzzer runs fuzzing sessions: every iteration logs in, builds the
// corpus, resolves real paths and sends everything to the target.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mark3labs/openapi-fuzz/internal/assemble"
	"github.com/mark3labs/openapi-fuzz/internal/auth"
	"github.com/mark3labs/openapi-fuzz/internal/dispatch"
	"github.com/mark3labs/openapi-fuzz/internal/pathres"
	"github.com/mark3labs/openapi-fuzz/internal/report"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

// Doer sends a request; *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, cred transport.Credentials, req transport.Request) (*transport.Response, error)
}

// Config controls a session.
type Config struct {
	Iterations  int
	TargetURL   string
	OutDir      string
	Auth        *auth.Config // nil runs unauthenticated
	Strategy    pathres.Strategy
	Concurrency int
	MaxIDProbes int
}

// Result summarizes a finished session.
type Result struct {
	Iterations int
	Requests   int
	ReportPath string
	Duration   time.Duration
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

// WithBuilder replaces the default corpus builder.
func WithBuilder(b *assemble.Builder) Option { return func(s *Session) { s.builder = b } }

// Session owns the report of one run.
type Session struct {
	model   *spec.ServiceModel
	doer    Doer
	cfg     Config
	builder *assemble.Builder
	report  *report.Report
	logger  *zap.Logger
}

// New validates cfg and returns a Session. An empty TargetURL falls back
// to the model's first usable server.
func New(model *spec.ServiceModel, doer Doer, cfg Config, opts ...Option) (*Session, error) {
	if model == nil {
		return nil, errors.New("fuzzer: nil service model")
	}
	if doer == nil {
		return nil, errors.New("fuzzer: nil client")
	}
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("fuzzer: iterations must be positive, got %d", cfg.Iterations)
	}
	if strings.TrimSpace(cfg.TargetURL) == "" {
		cfg.TargetURL = model.TargetURL()
	}
	if cfg.TargetURL == "" {
		return nil, errors.New("fuzzer: no target URL given and the document declares no usable server")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = pathres.StrategyAuto
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "output"
	}
	s := &Session{model: model, doer: doer, cfg: cfg, report: report.New()}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = assemble.NewBuilder(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Report exposes the accumulated entries.
func (s *Session) Report() *report.Report { return s.report }

// Run executes every iteration and writes the report, also when ctx is
// cancelled half way. Odd iterations use spec-derived defaults.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	resolver := pathres.New(s.doer, s.model, s.cfg.TargetURL,
		pathres.WithStrategy(s.cfg.Strategy),
		pathres.WithMaxIDProbes(s.cfg.MaxIDProbes),
		pathres.WithSynthesizer(s.builder.Synth),
		pathres.WithLogger(s.logger.Named("pathres")))
	disp := dispatch.New(s.doer, s.report, s.cfg.TargetURL,
		dispatch.WithConcurrency(s.cfg.Concurrency),
		dispatch.WithLogger(s.logger.Named("dispatch")))

	s.logger.Info("starting fuzzing session",
		zap.Int("iterations", s.cfg.Iterations),
		zap.String("target", s.cfg.TargetURL),
		zap.String("pathStrategy", string(s.cfg.Strategy)))

	var runErr error
	for i := 1; i <= s.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		useSpecDefaults := i%2 != 0
		s.logger.Info("fuzzing iteration", zap.Int("iteration", i), zap.Bool("useSpecDefaults", useSpecDefaults))

		cred := s.login(ctx)
		all := s.builder.Build(s.model, useSpecDefaults)
		for _, path := range s.model.Paths() {
			if ctx.Err() != nil {
				break
			}
			realPaths := resolver.Resolve(ctx, cred, path, useSpecDefaults)
			for _, ep := range s.model.EndpointsFor(path) {
				batch, ok := all.Batch(path, ep.Method)
				if !ok {
					continue
				}
				batch.RealPaths = realPaths
				res.Requests += disp.Send(ctx, cred, path, ep.Method, batch)
			}
		}
		res.Iterations = i
	}

	reportPath, err := s.report.Write(s.cfg.OutDir)
	if err != nil {
		return res, errors.Join(runErr, err)
	}
	res.ReportPath = reportPath
	res.Duration = time.Since(start)
	s.logger.Info("fuzzing session completed",
		zap.Int("iterations", res.Iterations),
		zap.Int("requests", res.Requests),
		zap.String("report", reportPath),
		zap.Duration("duration", res.Duration))
	return res, runErr
}

// login refreshes the credentials for one iteration. Failures are logged
// and the iteration runs unauthenticated.
func (s *Session) login(ctx context.Context) transport.Credentials {
	if s.cfg.Auth == nil {
		return nil
	}
	ac, err := auth.Login(ctx, s.doer, s.cfg.Auth)
	if err != nil {
		s.logger.Error("login failed, continuing without authentication", zap.Error(err))
		return nil
	}
	return ac
}
