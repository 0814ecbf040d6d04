package browser

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type chromedpDriver struct {
	opts Options
}

func NewChromedpDriver(opts Options) Driver {
	return &chromedpDriver{opts: opts.withDefaults()}
}

func (d *chromedpDriver) Open(ctx context.Context, name string, profile Profile) (Session, error) {
	var emulate chromedp.Device
	if !profile.IsDesktop() {
		m, err := LookupDevice(profile.Device)
		if err != nil {
			return nil, err
		}
		emulate = device.Info{
			Name:      profile.Device,
			UserAgent: m.UserAgent,
			Width:     int64(m.Width),
			Height:    int64(m.Height),
			Scale:     m.ScaleFactor,
			Mobile:    m.Mobile,
			Touch:     m.Touch,
		}
	}

	options := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
	)
	// the browser must outlive the caller's context, only cleanup ends it
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), options...)
	sugar := d.opts.Logger.Sugar()
	tab, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	s := &chromedpSession{name: name, tab: tab, cancel: func() {
		cancelTab()
		cancelAlloc()
	}, log: d.opts.Logger}

	// the first Run allocates the browser and binds it to the context it is
	// given, so it must see the tab context itself
	if err := chromedp.Run(tab); err != nil {
		s.cancel()
		return nil, errors.Wrapf(err, "failed to start chromium for %s session", name)
	}
	if emulate != nil {
		if err := s.run(ctx, time.Minute, chromedp.Emulate(emulate)); err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "failed to emulate %s", profile.Device)
		}
	}
	d.opts.Logger.Debug("chromedp session opened", zap.String("session", name))
	return s, nil
}

func (d *chromedpDriver) Close() error {
	return nil
}

type chromedpSession struct {
	name   string
	tab    context.Context
	cancel func()
	log    *zap.Logger
	once   sync.Once
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *chromedpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) Name() string {
	return s.name
}

func (s *chromedpSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return markTimeout(s.run(ctx, timeout, chromedp.Navigate(url)))
}

func (s *chromedpSession) Locate(q Query) Locator {
	return &chromedpLocator{query: q, session: s}
}

func (s *chromedpSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, 30*time.Second, action); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (s *chromedpSession) Close() error {
	s.once.Do(func() {
		if err := chromedp.Cancel(s.tab); err != nil {
			s.log.Debug("failed to close chromium tab", zap.String("session", s.name), zap.Error(err))
		}
		s.cancel()
	})
	return nil
}

type chromedpLocator struct {
	query   Query
	session *chromedpSession
}

func (l *chromedpLocator) eval(ctx context.Context, op string, res any) error {
	expr, err := locatorExpression(l.query, op)
	if err != nil {
		return err
	}
	return l.session.run(ctx, 10*time.Second, chromedp.Evaluate(expr, res))
}

func (l *chromedpLocator) Count(ctx context.Context) (int, error) {
	if l.query.Kind == QueryRole {
		var ids []int64
		err := l.session.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			ids, err = l.roleMatches(ctx)
			return err
		}))
		return len(ids), err
	}
	var n int
	err := l.eval(ctx, opCount, &n)
	return n, err
}

func (l *chromedpLocator) IsVisible(ctx context.Context) (bool, error) {
	if l.query.Kind == QueryRole {
		var visible bool
		err := l.session.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
			ids, err := l.roleMatches(ctx)
			if err != nil || len(ids) == 0 {
				return err
			}
			return callOnNode(ctx, ids[0], visibleScript, &visible)
		}))
		return visible, err
	}
	var visible bool
	err := l.eval(ctx, opVisible, &visible)
	return visible, err
}

func (l *chromedpLocator) Click(ctx context.Context, timeout time.Duration) error {
	if l.query.Kind == QueryRole {
		return markTimeout(l.session.run(ctx, timeout, chromedp.ActionFunc(l.clickRole)))
	}
	expr, err := locatorExpression(l.query, opElement)
	if err != nil {
		return err
	}
	return markTimeout(l.session.run(ctx, timeout, chromedp.Click(expr, chromedp.ByJSPath)))
}

// roleMatches asks the browser's accessibility tree for the query's role and
// filters the computed names.
func (l *chromedpLocator) roleMatches(ctx context.Context) ([]int64, error) {
	var doc *runtime.RemoteObject
	if err := chromedp.Evaluate(`document`, &doc).Do(ctx); err != nil {
		return nil, err
	}
	res, err := accessibility.QueryAXTree().WithObjectID(doc.ObjectID).WithRole(l.query.Role).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query accessibility tree for %s", l.query)
	}
	nodes := make([]axNode, 0, len(res))
	for _, n := range res {
		nodes = append(nodes, fromCDPAXNode(n))
	}
	return matchRole(nodes, l.query), nil
}

// clickRole waits for the first match and clicks the centre of its box.
func (l *chromedpLocator) clickRole(ctx context.Context) error {
	for {
		ids, err := l.roleMatches(ctx)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			var point struct{ X, Y float64 }
			if err := callOnNode(ctx, ids[0], clickPointScript, &point); err != nil {
				return err
			}
			return chromedp.MouseClickXY(point.X, point.Y).Do(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// callOnNode runs fn with the DOM node behind backendID as this and decodes
// the result into res.
func callOnNode(ctx context.Context, backendID int64, fn string, res any) error {
	obj, err := dom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(ctx)
	if err != nil {
		return err
	}
	out, exc, err := runtime.CallFunctionOn(fn).WithObjectID(obj.ObjectID).WithReturnByValue(true).Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	return json.Unmarshal([]byte(out.Value), res)
}

func (l *chromedpLocator) String() string {
	return l.query.String()
}
