package verify

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/integrail/ui-verify/pkg/browser"
)

type fakeElement struct {
	count       int
	visible     bool
	appearAfter int // polls before the element turns visible
	polls       int
	onClick     func(s *fakeSession)
}

type fakeSession struct {
	name          string
	elements      map[string]*fakeElement
	gotoErr       error
	screenshotErr error
	gotos         []string
	clicks        int
	closed        int
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{name: name, elements: map[string]*fakeElement{}}
}

func (s *fakeSession) with(q browser.Query, el *fakeElement) *fakeSession {
	s.elements[q.String()] = el
	return s
}

func (s *fakeSession) element(q browser.Query) *fakeElement {
	return s.elements[q.String()]
}

func (s *fakeSession) Name() string {
	return s.name
}

func (s *fakeSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	s.gotos = append(s.gotos, url)
	return s.gotoErr
}

func (s *fakeSession) Locate(q browser.Query) browser.Locator {
	return &fakeLocator{session: s, query: q}
}

func (s *fakeSession) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if s.screenshotErr != nil {
		return s.screenshotErr
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLocator struct {
	session *fakeSession
	query   browser.Query
}

func (l *fakeLocator) Count(ctx context.Context) (int, error) {
	el := l.session.element(l.query)
	if el == nil {
		return 0, nil
	}
	return el.count, nil
}

func (l *fakeLocator) IsVisible(ctx context.Context) (bool, error) {
	el := l.session.element(l.query)
	if el == nil {
		return false, nil
	}
	el.polls++
	if el.appearAfter > 0 {
		return el.polls > el.appearAfter, nil
	}
	return el.visible, nil
}

func (l *fakeLocator) Click(ctx context.Context, timeout time.Duration) error {
	el := l.session.element(l.query)
	if el == nil {
		return errors.Errorf("no element for %s", l.query)
	}
	l.session.clicks++
	if el.onClick != nil {
		el.onClick(l.session)
	}
	return nil
}

func (l *fakeLocator) String() string {
	return l.query.String()
}

type fakeDriver struct {
	sessions map[string]*fakeSession
	openErr  map[string]error
	opened   []browser.Profile
}

func (d *fakeDriver) Open(ctx context.Context, name string, profile browser.Profile) (browser.Session, error) {
	if err := d.openErr[name]; err != nil {
		return nil, err
	}
	d.opened = append(d.opened, profile)
	return d.sessions[name], nil
}

func (d *fakeDriver) Close() error {
	return nil
}

// newHealthyApp returns sessions rendering the expected layout: no old
// navbar links, both headings, a collapsed sidebar the toggle opens and
// closes.
func newHealthyApp() (*fakeDriver, *fakeSession, *fakeSession) {
	desktop := newFakeSession("desktop").
		with(browser.ByRole("heading", "Popular Topics"), &fakeElement{count: 1, visible: true}).
		with(browser.ByRole("heading", "All News"), &fakeElement{count: 1, visible: true})
	mobile := newFakeSession("mobile").
		with(sidebarText, &fakeElement{count: 1}).
		with(sidebarToggle, &fakeElement{count: 1, visible: true, onClick: func(s *fakeSession) {
			sidebar := s.element(sidebarText)
			sidebar.visible = !sidebar.visible
		}})
	return &fakeDriver{sessions: map[string]*fakeSession{"desktop": desktop, "mobile": mobile}}, desktop, mobile
}

type memReporter struct {
	mu     sync.Mutex
	lines  []string
	shots  []string
	errors []error
}

func (r *memReporter) Report(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg)
}

func (r *memReporter) Screenshot(session, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shots = append(r.shots, path)
}

func (r *memReporter) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func testConfig(t *testing.T) Config {
	RegisterTestingT(t)
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.VisibilityTimeout = "50ms"
	cfg.AssertTimeout = "20ms"
	cfg.PollInterval = "1ms"
	return cfg
}
