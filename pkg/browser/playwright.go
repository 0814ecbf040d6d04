package browser

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

type playwrightDriver struct {
	pw   *playwright.Playwright
	opts Options
}

func NewPlaywrightDriver(opts Options) (Driver, error) {
	opts = opts.withDefaults()
	if opts.InstallBrowser {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, errors.Wrapf(err, "failed to install playwright browsers")
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start playwright")
	}
	return &playwrightDriver{pw: pw, opts: opts}, nil
}

func (d *playwrightDriver) Open(ctx context.Context, name string, profile Profile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contextOpts, err := contextOptions(d.pw.Devices, profile)
	if err != nil {
		return nil, err
	}
	browser, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.opts.Headless),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to launch chromium for %s session", name)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, errors.Wrapf(err, "failed to create %s browser context", name)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		return nil, errors.Wrapf(err, "failed to open %s page", name)
	}
	d.opts.Logger.Debug("playwright session opened", zap.String("session", name), zap.String("device", profile.Device))
	return &playwrightSession{name: name, browser: browser, bctx: bctx, page: page, log: d.opts.Logger}, nil
}

func (d *playwrightDriver) Close() error {
	return d.pw.Stop()
}

// contextOptions maps a profile onto context options. Playwright's own
// device registry wins over the built-in metrics table.
func contextOptions(registry map[string]*playwright.DeviceDescriptor, profile Profile) (playwright.BrowserNewContextOptions, error) {
	opts := playwright.BrowserNewContextOptions{}
	if profile.IsDesktop() {
		return opts, nil
	}
	if desc, ok := registry[profile.Device]; ok && desc != nil {
		applyDeviceDescriptor(&opts, desc)
		return opts, nil
	}
	m, err := LookupDevice(profile.Device)
	if err != nil {
		return opts, err
	}
	applyDeviceDescriptor(&opts, &playwright.DeviceDescriptor{
		UserAgent:         m.UserAgent,
		Viewport:          &playwright.Size{Width: m.Width, Height: m.Height},
		Screen:            &playwright.Size{Width: m.ScreenWidth, Height: m.ScreenHeight},
		DeviceScaleFactor: m.ScaleFactor,
		IsMobile:          m.Mobile,
		HasTouch:          m.Touch,
	})
	return opts, nil
}

func applyDeviceDescriptor(opts *playwright.BrowserNewContextOptions, desc *playwright.DeviceDescriptor) {
	if desc.UserAgent != "" {
		opts.UserAgent = playwright.String(desc.UserAgent)
	}
	if desc.Viewport != nil {
		opts.Viewport = &playwright.Size{Width: desc.Viewport.Width, Height: desc.Viewport.Height}
		opts.Screen = &playwright.Size{Width: desc.Viewport.Width, Height: desc.Viewport.Height}
	}
	if desc.Screen != nil {
		opts.Screen = &playwright.Size{Width: desc.Screen.Width, Height: desc.Screen.Height}
	}
	if desc.DeviceScaleFactor > 0 {
		opts.DeviceScaleFactor = playwright.Float(desc.DeviceScaleFactor)
	}
	opts.IsMobile = playwright.Bool(desc.IsMobile)
	opts.HasTouch = playwright.Bool(desc.HasTouch)
}

type playwrightSession struct {
	name    string
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	log     *zap.Logger
	once    sync.Once
	err     error
}

func (s *playwrightSession) Name() string {
	return s.name
}

func (s *playwrightSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(millis(ctx, timeout)),
	})
	return markTimeout(err)
}

func (s *playwrightSession) Locate(q Query) Locator {
	var loc playwright.Locator
	switch q.Kind {
	case QueryRole:
		loc = s.page.GetByRole(playwright.AriaRole(q.Role), playwright.PageGetByRoleOptions{
			Name:  q.Name,
			Exact: playwright.Bool(q.Exact),
		})
	case QueryText:
		loc = s.page.GetByText(q.Text, playwright.PageGetByTextOptions{
			Exact: playwright.Bool(q.Exact),
		})
	default:
		loc = s.page.Locator(q.Selector)
	}
	return &playwrightLocator{query: q, loc: loc}
}

func (s *playwrightSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (s *playwrightSession) Close() error {
	s.once.Do(func() {
		if err := s.bctx.Close(); err != nil {
			s.log.Debug("failed to close browser context", zap.String("session", s.name), zap.Error(err))
		}
		s.err = s.browser.Close()
	})
	return s.err
}

type playwrightLocator struct {
	query Query
	loc   playwright.Locator
}

func (l *playwrightLocator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.loc.Count()
}

func (l *playwrightLocator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.loc.IsVisible()
}

func (l *playwrightLocator) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return markTimeout(l.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(millis(ctx, timeout)),
	}))
}

func (l *playwrightLocator) String() string {
	return l.query.String()
}

// millis caps timeout by the context deadline.
func millis(ctx context.Context, timeout time.Duration) float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return float64(timeout.Milliseconds())
}
