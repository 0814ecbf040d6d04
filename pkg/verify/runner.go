package verify

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/integrail/ui-verify/pkg/browser"
)

const errorShotTimeout = 10 * time.Second

type Runner struct {
	cfg      Config
	timeouts Timeouts
	driver   browser.Driver
	reporter Reporter
	log      *zap.Logger
	passes   []Pass
}

type Option func(r *Runner)

func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithPasses replaces the built-in checklist.
func WithPasses(passes []Pass) Option {
	return func(r *Runner) {
		r.passes = passes
	}
}

func NewRunner(cfg Config, driver browser.Driver, reporter Reporter, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		timeouts: cfg.Timeouts(),
		driver:   driver,
		reporter: reporter,
		log:      zap.NewNop(),
		passes:   Checklist(cfg),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type PassResult struct {
	Name  string
	Steps int // steps that succeeded
	Err   error
}

type Result struct {
	Err         error
	Passes      []PassResult
	Screenshots []string
}

func (r *Result) OK() bool {
	return r.Err == nil
}

// Run opens one session per pass, runs the passes and closes every session
// before returning. Failures inside a pass are reported and end up in
// Result.Err; the returned error is reserved for failures to set the run up.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output dir %s", r.cfg.OutputDir)
	}

	sessions := make([]browser.Session, len(r.passes))
	defer r.closeSessions(sessions)
	for i, pass := range r.passes {
		s, err := r.driver.Open(ctx, pass.Name, pass.Profile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s session", pass.Name)
		}
		sessions[i] = s
	}

	res := &Result{Passes: lo.Map(r.passes, func(p Pass, _ int) PassResult {
		return PassResult{Name: p.Name}
	})}
	shots := make([][]string, len(r.passes))
	var err error
	if r.cfg.Parallel {
		err = r.runParallel(ctx, sessions, res.Passes, shots)
	} else {
		for i, pass := range r.passes {
			res.Passes[i], shots[i] = r.runPass(ctx, pass, sessions[i])
			if err = res.Passes[i].Err; err != nil {
				break
			}
		}
	}
	res.Screenshots = lo.Flatten(shots)

	if err != nil {
		res.Err = err
		r.reporter.Error(err)
		res.Screenshots = append(res.Screenshots, r.captureErrorShots(ctx, sessions)...)
		return res, nil
	}
	r.reporter.Report("\nScript completed successfully.")
	return res, nil
}

func (r *Runner) runParallel(ctx context.Context, sessions []browser.Session, results []PassResult, shots [][]string) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, pass := range r.passes {
		g.Go(func() error {
			results[i], shots[i] = r.runPass(gctx, pass, sessions[i])
			return results[i].Err
		})
	}
	return g.Wait()
}

func (r *Runner) runPass(ctx context.Context, pass Pass, s browser.Session) (PassResult, []string) {
	res := PassResult{Name: pass.Name}
	var shots []string
	if pass.Banner != "" {
		r.reporter.Report(pass.Banner)
	}
	for _, step := range pass.Steps {
		start := time.Now()
		shot, err := r.runStep(ctx, s, step)
		r.log.Debug("step finished",
			zap.String("pass", pass.Name),
			zap.String("step", string(step.Kind)),
			zap.String("target", lo.If(step.Kind == StepScreenshot, step.File).Else(step.Query.String())),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		if err != nil {
			res.Err = err
			return res, shots
		}
		if shot != "" {
			shots = append(shots, shot)
			r.reporter.Screenshot(pass.Name, shot)
		}
		res.Steps++
		if step.Message != "" {
			r.reporter.Report(step.Message)
		}
	}
	return res, shots
}

func (r *Runner) runStep(ctx context.Context, s browser.Session, step Step) (string, error) {
	timeout := lo.If(step.Timeout > 0, step.Timeout).Else(r.timeouts.Assert)
	switch step.Kind {
	case StepNavigate:
		if err := s.Goto(ctx, r.cfg.TargetURL, timeout); err != nil {
			return "", newNavigationError(r.cfg.TargetURL, err)
		}
	case StepExpectVisible, StepExpectHidden:
		return "", expectVisibility(ctx, s.Locate(step.Query), step.Kind == StepExpectVisible, timeout, r.timeouts.Poll)
	case StepClick:
		loc := s.Locate(step.Query)
		n, err := loc.Count(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "failed to resolve %s", loc)
		}
		if n > 1 {
			return "", &LocatorError{Locator: loc.String(), Count: n}
		}
		if err := loc.Click(ctx, timeout); err != nil {
			if n == 0 {
				return "", &LocatorError{Locator: loc.String()}
			}
			return "", errors.Wrapf(err, "failed to click %s", loc)
		}
	case StepScreenshot:
		path := filepath.Join(r.cfg.OutputDir, step.File)
		if err := s.Screenshot(ctx, path, step.FullPage); err != nil {
			return "", errors.Wrapf(err, "failed to capture %s", path)
		}
		return path, nil
	default:
		return "", errors.Errorf("unknown step kind %q", step.Kind)
	}
	return "", nil
}

// captureErrorShots takes a screenshot of every session. Failures are
// logged only; the run already failed.
func (r *Runner) captureErrorShots(ctx context.Context, sessions []browser.Session) []string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorShotTimeout)
	defer cancel()

	var paths []string
	for i, s := range sessions {
		if s == nil || r.passes[i].ErrorFile == "" {
			continue
		}
		path := filepath.Join(r.cfg.OutputDir, r.passes[i].ErrorFile)
		if err := s.Screenshot(ctx, path, false); err != nil {
			r.log.Warn("failed to capture error screenshot", zap.String("session", s.Name()), zap.Error(err))
			continue
		}
		paths = append(paths, path)
		r.reporter.Screenshot(s.Name(), path)
	}
	return paths
}

func (r *Runner) closeSessions(sessions []browser.Session) {
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			r.log.Warn("failed to close session", zap.String("session", s.Name()), zap.Error(err))
		}
	}
}
