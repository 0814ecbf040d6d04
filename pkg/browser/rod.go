package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// rodDriver launches one chromium per session through rod's launcher.
type rodDriver struct {
	opts Options
}

func NewRodDriver(opts Options) Driver {
	return &rodDriver{opts: opts.withDefaults()}
}

func (d *rodDriver) Open(ctx context.Context, name string, profile Profile) (Session, error) {
	var device *devices.Device
	if !profile.IsDesktop() {
		m, err := LookupDevice(profile.Device)
		if err != nil {
			return nil, err
		}
		device = rodDevice(profile.Device, m)
	}

	l := launcher.New().Headless(d.opts.Headless).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to launch chromium for %s session", name)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrapf(err, "failed to connect to chromium for %s session", name)
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, errors.Wrapf(err, "failed to open %s page", name)
	}
	if device != nil {
		if err := page.Emulate(*device); err != nil {
			_ = browser.Close()
			l.Kill()
			return nil, errors.Wrapf(err, "failed to emulate %s", profile.Device)
		}
	}
	d.opts.Logger.Debug("rod session opened", zap.String("session", name), zap.String("controlURL", controlURL))
	return &rodSession{name: name, launcher: l, browser: browser, page: page, log: d.opts.Logger}, nil
}

func (d *rodDriver) Close() error {
	return nil
}

func rodDevice(title string, m DeviceMetrics) *devices.Device {
	var capabilities []string
	if m.Touch {
		capabilities = append(capabilities, "touch")
	}
	if m.Mobile {
		capabilities = append(capabilities, "mobile")
	}
	return &devices.Device{
		Title:        title,
		Capabilities: capabilities,
		UserAgent:    m.UserAgent,
		Screen: devices.Screen{
			DevicePixelRatio: m.ScaleFactor,
			Horizontal:       devices.ScreenSize{Width: m.Height, Height: m.Width},
			Vertical:         devices.ScreenSize{Width: m.Width, Height: m.Height},
		},
	}
}

type rodSession struct {
	name     string
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	log      *zap.Logger
	once     sync.Once
	err      error
}

func (s *rodSession) Name() string {
	return s.name
}

func (s *rodSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return markTimeout(err)
	}
	return markTimeout(page.WaitLoad())
}

func (s *rodSession) Locate(q Query) Locator {
	return &rodLocator{query: q, page: s.page}
}

func (s *rodSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	bin, err := s.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return err
	}
	return utils.OutputFile(path, bin)
}

func (s *rodSession) Close() error {
	s.once.Do(func() {
		s.err = s.browser.Close()
		s.launcher.Cleanup()
		s.log.Debug("rod session closed", zap.String("session", s.name), zap.Error(s.err))
	})
	return s.err
}

type rodLocator struct {
	query Query
	page  *rod.Page
}

func (l *rodLocator) Count(ctx context.Context) (int, error) {
	if l.query.Kind == QueryRole {
		ids, err := l.roleMatches(l.page.Context(ctx))
		return len(ids), err
	}
	res, err := l.page.Context(ctx).Eval(locatorScript, l.query, opCount)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (l *rodLocator) IsVisible(ctx context.Context) (bool, error) {
	if l.query.Kind == QueryRole {
		page := l.page.Context(ctx)
		ids, err := l.roleMatches(page)
		if err != nil || len(ids) == 0 {
			return false, err
		}
		el, err := page.ElementFromNode(&proto.DOMNode{BackendNodeID: proto.DOMBackendNodeID(ids[0])})
		if err != nil {
			return false, err
		}
		res, err := el.Eval(visibleScript)
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	}
	res, err := l.page.Context(ctx).Eval(locatorScript, l.query, opVisible)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (l *rodLocator) Click(ctx context.Context, timeout time.Duration) error {
	page := l.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	var (
		el  *rod.Element
		err error
	)
	if l.query.Kind == QueryRole {
		el, err = l.firstRoleMatch(page)
	} else {
		el, err = page.ElementByJS(rod.Eval(locatorScript, l.query, opElement))
	}
	if err != nil {
		return markTimeout(err)
	}
	return markTimeout(el.Click(proto.InputMouseButtonLeft, 1))
}

// roleMatches asks the browser's accessibility tree for the query's role and
// filters the computed names.
func (l *rodLocator) roleMatches(page *rod.Page) ([]int64, error) {
	doc, err := page.Evaluate(rod.Eval(`() => document`).ByObject())
	if err != nil {
		return nil, err
	}
	res, err := proto.AccessibilityQueryAXTree{ObjectID: doc.ObjectID, Role: l.query.Role}.Call(page)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query accessibility tree for %s", l.query)
	}
	nodes := make([]axNode, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		nodes = append(nodes, fromRodAXNode(n))
	}
	return matchRole(nodes, l.query), nil
}

// firstRoleMatch retries until the role query matches, like ElementByJS.
func (l *rodLocator) firstRoleMatch(page *rod.Page) (*rod.Element, error) {
	var id int64
	err := utils.Retry(page.GetContext(), rod.DefaultSleeper(), func() (bool, error) {
		ids, err := l.roleMatches(page)
		if err != nil {
			return true, err
		}
		if len(ids) == 0 {
			return false, nil
		}
		id = ids[0]
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return page.ElementFromNode(&proto.DOMNode{BackendNodeID: proto.DOMBackendNodeID(id)})
}

func (l *rodLocator) String() string {
	return l.query.String()
}
