package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/integrail/ui-verify/pkg/browser"
)

var successLines = []string{
	"Running desktop tests...",
	"- Old navbar links are not visible.",
	"- 'Popular Topics' section is visible.",
	"- 'All News' section is visible.",
	"- Desktop screenshot captured.",
	"\nRunning mobile tests...",
	"- Sidebar is hidden on mobile by default.",
	"- Clicked sidebar toggle button.",
	"- Sidebar is visible after toggle.",
	"- Mobile screenshot captured.",
	"\nScript completed successfully.",
}

func TestRunSuccessful(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, mobile := newHealthyApp()
	reporter := &memReporter{}

	res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
	Expect(err).To(BeNil())
	Expect(res.OK()).To(BeTrue())
	Expect(reporter.lines).To(Equal(successLines))
	Expect(reporter.errors).To(BeEmpty())

	Expect(res.Screenshots).To(Equal([]string{
		filepath.Join(cfg.OutputDir, "desktop_view.png"),
		filepath.Join(cfg.OutputDir, "mobile_view_sidebar_open.png"),
	}))
	for _, path := range res.Screenshots {
		Expect(path).To(BeAnExistingFile())
	}
	Expect(filepath.Join(cfg.OutputDir, "error_desktop.png")).NotTo(BeAnExistingFile())

	Expect(driver.opened).To(Equal([]browser.Profile{browser.Desktop(), browser.Mobile("iPhone 13")}))
	Expect(desktop.gotos).To(Equal([]string{"http://localhost:5000"}))
	Expect(mobile.gotos).To(Equal([]string{"http://localhost:5000"}))
	Expect(mobile.clicks).To(Equal(1))
	Expect(desktop.closed).To(Equal(1))
	Expect(mobile.closed).To(Equal(1))
	Expect(res.Passes).To(HaveLen(2))
	Expect(res.Passes[0].Steps).To(Equal(7))
	Expect(res.Passes[1].Steps).To(Equal(6))
}

func TestRunNavigationTimeout(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, mobile := newHealthyApp()
	desktop.gotoErr = errors.Wrapf(context.DeadlineExceeded, "navigating")
	reporter := &memReporter{}

	res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
	Expect(err).To(BeNil())
	Expect(res.OK()).To(BeFalse())

	var navErr *NavigationError
	Expect(errors.As(res.Err, &navErr)).To(BeTrue())
	Expect(navErr.Timeout).To(BeTrue())
	Expect(navErr.URL).To(Equal("http://localhost:5000"))
	Expect(reporter.errors).To(HaveLen(1))
	Expect(errorMessage(reporter.errors[0])).To(HavePrefix("An error occurred: navigation to http://localhost:5000 timed out"))

	// the mobile pass never starts, both pages are still captured and closed
	Expect(mobile.gotos).To(BeEmpty())
	Expect(res.Passes).To(HaveLen(2))
	Expect(res.Passes[0].Name).To(Equal("desktop"))
	Expect(res.Passes[1]).To(Equal(PassResult{Name: "mobile"}))
	Expect(reporter.lines).To(Equal([]string{"Running desktop tests..."}))
	Expect(res.Screenshots).To(ConsistOf(
		filepath.Join(cfg.OutputDir, "error_desktop.png"),
		filepath.Join(cfg.OutputDir, "error_mobile.png"),
	))
	Expect(desktop.closed).To(Equal(1))
	Expect(mobile.closed).To(Equal(1))
}

func TestRunFailures(t *testing.T) {
	testCases := []struct {
		name   string
		breaks func(desktop, mobile *fakeSession)
		check  func(err error)
	}{
		{
			name: "old navbar link still visible",
			breaks: func(desktop, mobile *fakeSession) {
				desktop.with(browser.ByRole("link", "Pools"), &fakeElement{count: 1, visible: true})
			},
			check: func(err error) {
				var visErr *VisibilityError
				Expect(errors.As(err, &visErr)).To(BeTrue())
				Expect(visErr.Visible).To(BeFalse())
				Expect(visErr.Locator).To(Equal(`role=link[name="Pools"]`))
			},
		},
		{
			name: "heading never rendered",
			breaks: func(desktop, mobile *fakeSession) {
				desktop.with(browser.ByRole("heading", "All News"), &fakeElement{count: 1})
			},
			check: func(err error) {
				var visErr *VisibilityError
				Expect(errors.As(err, &visErr)).To(BeTrue())
				Expect(visErr.Visible).To(BeTrue())
				Expect(visErr.Timeout.String()).To(Equal("50ms"))
			},
		},
		{
			name: "sidebar open by default",
			breaks: func(desktop, mobile *fakeSession) {
				mobile.element(sidebarText).visible = true
			},
			check: func(err error) {
				var visErr *VisibilityError
				Expect(errors.As(err, &visErr)).To(BeTrue())
				Expect(visErr.Locator).To(Equal(`text="CATEGORIES"`))
			},
		},
		{
			name: "toggle opens nothing",
			breaks: func(desktop, mobile *fakeSession) {
				mobile.element(sidebarToggle).onClick = nil
			},
			check: func(err error) {
				var visErr *VisibilityError
				Expect(errors.As(err, &visErr)).To(BeTrue())
				Expect(visErr.Visible).To(BeTrue())
			},
		},
		{
			name: "sidebar text matches twice",
			breaks: func(desktop, mobile *fakeSession) {
				mobile.element(sidebarText).count = 2
			},
			check: func(err error) {
				var locErr *LocatorError
				Expect(errors.As(err, &locErr)).To(BeTrue())
				Expect(locErr.Count).To(Equal(2))
			},
		},
		{
			name: "toggle missing from header",
			breaks: func(desktop, mobile *fakeSession) {
				delete(mobile.elements, sidebarToggle.String())
			},
			check: func(err error) {
				var visErr *VisibilityError
				Expect(errors.As(err, &visErr)).To(BeTrue())
				Expect(visErr.Locator).To(Equal(sidebarToggleSelector))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			driver, desktop, mobile := newHealthyApp()
			tc.breaks(desktop, mobile)
			reporter := &memReporter{}

			res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(res.OK()).To(BeFalse())
			tc.check(res.Err)
			Expect(reporter.errors).To(Equal([]error{res.Err}))
			Expect(reporter.lines).NotTo(ContainElement("\nScript completed successfully."))
			Expect(desktop.closed).To(Equal(1))
			Expect(mobile.closed).To(Equal(1))
		})
	}
}

func TestHeadingAppearsWhilePolling(t *testing.T) {
	cfg := testConfig(t)
	cfg.VisibilityTimeout = "5s"
	driver, desktop, _ := newHealthyApp()
	desktop.with(browser.ByRole("heading", "Popular Topics"), &fakeElement{count: 1, appearAfter: 3})

	res, err := NewRunner(cfg, driver, &memReporter{}).Run(context.Background())
	Expect(err).To(BeNil())
	Expect(res.Err).To(BeNil())
	Expect(desktop.element(browser.ByRole("heading", "Popular Topics")).polls).To(Equal(4))
}

func TestToggleBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.VerifyToggleBack = true
	driver, _, mobile := newHealthyApp()
	reporter := &memReporter{}

	res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
	Expect(err).To(BeNil())
	Expect(res.Err).To(BeNil())
	Expect(mobile.clicks).To(Equal(2))
	Expect(mobile.element(sidebarText).visible).To(BeFalse())
	Expect(reporter.lines).To(ContainElement("- Sidebar is hidden after second toggle."))
}

func TestErrorScreenshotIsBestEffort(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, mobile := newHealthyApp()
	mobile.gotoErr = errors.New("net::ERR_CONNECTION_REFUSED")
	mobile.screenshotErr = errors.New("page crashed")
	reporter := &memReporter{}

	res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
	Expect(err).To(BeNil())

	var navErr *NavigationError
	Expect(errors.As(res.Err, &navErr)).To(BeTrue())
	Expect(navErr.Timeout).To(BeFalse())
	Expect(res.Screenshots).To(ContainElement(filepath.Join(cfg.OutputDir, "error_desktop.png")))
	Expect(res.Screenshots).NotTo(ContainElement(filepath.Join(cfg.OutputDir, "error_mobile.png")))
	Expect(desktop.closed).To(Equal(1))
	Expect(mobile.closed).To(Equal(1))
}

func TestOpenFailureClosesOpenedSessions(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, _ := newHealthyApp()
	driver.openErr = map[string]error{"mobile": errors.New("chromium crashed")}

	res, err := NewRunner(cfg, driver, &memReporter{}).Run(context.Background())
	Expect(res).To(BeNil())
	Expect(err).To(MatchError(ContainSubstring("failed to open mobile session")))
	Expect(desktop.closed).To(Equal(1))
	Expect(desktop.gotos).To(BeEmpty())
}

func TestRunParallel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parallel = true
	driver, desktop, mobile := newHealthyApp()
	reporter := &memReporter{}

	res, err := NewRunner(cfg, driver, reporter).Run(context.Background())
	Expect(err).To(BeNil())
	Expect(res.Err).To(BeNil())
	Expect(reporter.lines).To(ConsistOf(successLines))
	Expect(res.Screenshots).To(HaveLen(2))
	Expect(desktop.closed).To(Equal(1))
	Expect(mobile.closed).To(Equal(1))
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.VisibilityTimeout = "1m"
	driver, desktop, mobile := newHealthyApp()
	desktop.with(browser.ByRole("heading", "Popular Topics"), &fakeElement{count: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewRunner(cfg, driver, &memReporter{}).Run(ctx)
	Expect(err).To(BeNil())
	Expect(errors.Is(res.Err, context.Canceled)).To(BeTrue())
	// error screenshots ignore the cancellation
	Expect(res.Screenshots).To(HaveLen(2))
	Expect(desktop.closed).To(Equal(1))
	Expect(mobile.closed).To(Equal(1))
}

func TestRunNetworkTimeoutIsNavigationTimeout(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, _ := newHealthyApp()
	desktop.gotoErr = fmt.Errorf("%w: %w", browser.ErrTimeout, errors.New("page load error net::ERR_CONNECTION_TIMED_OUT"))

	res, err := NewRunner(cfg, driver, &memReporter{}).Run(context.Background())
	Expect(err).To(BeNil())

	var navErr *NavigationError
	Expect(errors.As(res.Err, &navErr)).To(BeTrue())
	Expect(navErr.Timeout).To(BeTrue())
}

func TestRunTimeoutWordIsNotATimeout(t *testing.T) {
	cfg := testConfig(t)
	driver, desktop, _ := newHealthyApp()
	desktop.gotoErr = errors.New("GET /timeout-page returned 500")

	res, err := NewRunner(cfg, driver, &memReporter{}).Run(context.Background())
	Expect(err).To(BeNil())

	var navErr *NavigationError
	Expect(errors.As(res.Err, &navErr)).To(BeTrue())
	Expect(navErr.Timeout).To(BeFalse())
}
