package verify

import (
	"time"

	"github.com/integrail/ui-verify/pkg/browser"
)

type StepKind string

const (
	StepNavigate      StepKind = "navigate"
	StepExpectHidden  StepKind = "expectHidden"
	StepExpectVisible StepKind = "expectVisible"
	StepClick         StepKind = "click"
	StepScreenshot    StepKind = "screenshot"
)

// Step is one action of a pass. Message, when set, is reported once the
// step succeeded.
type Step struct {
	Kind     StepKind
	Query    browser.Query
	Timeout  time.Duration // zero means the default assertion timeout
	File     string
	FullPage bool
	Message  string
}

// Pass is the sequence of steps run against one session.
type Pass struct {
	Name      string
	Profile   browser.Profile
	Banner    string
	Steps     []Step
	ErrorFile string
}

const (
	DesktopScreenshot = "desktop_view.png"
	MobileScreenshot  = "mobile_view_sidebar_open.png"
	DesktopErrorShot  = "error_desktop.png"
	MobileErrorShot   = "error_mobile.png"

	sidebarToggleSelector = `header button:has(svg[class*="lucide-menu"])`
)

var (
	sidebarText   = browser.ByText("CATEGORIES")
	sidebarToggle = browser.BySelector(sidebarToggleSelector)
)

// Checklist returns the desktop and mobile passes in run order.
func Checklist(cfg Config) []Pass {
	t := cfg.Timeouts()
	return []Pass{desktopPass(t), mobilePass(cfg, t)}
}

func desktopPass(t Timeouts) Pass {
	return Pass{
		Name:      "desktop",
		Profile:   browser.Desktop(),
		Banner:    "Running desktop tests...",
		ErrorFile: DesktopErrorShot,
		Steps: []Step{
			{Kind: StepNavigate, Timeout: t.Navigation},
			{Kind: StepExpectHidden, Query: browser.ByRole("link", "Video")},
			{Kind: StepExpectHidden, Query: browser.ByRole("link", "Pools")},
			{Kind: StepExpectHidden, Query: browser.ByRole("link", "Magazine"), Message: "- Old navbar links are not visible."},
			{Kind: StepExpectVisible, Query: browser.ByRole("heading", "Popular Topics"), Timeout: t.Visibility, Message: "- 'Popular Topics' section is visible."},
			{Kind: StepExpectVisible, Query: browser.ByRole("heading", "All News"), Timeout: t.Visibility, Message: "- 'All News' section is visible."},
			{Kind: StepScreenshot, File: DesktopScreenshot, FullPage: true, Message: "- Desktop screenshot captured."},
		},
	}
}

func mobilePass(cfg Config, t Timeouts) Pass {
	steps := []Step{
		{Kind: StepNavigate, Timeout: t.Navigation},
		{Kind: StepExpectHidden, Query: sidebarText, Message: "- Sidebar is hidden on mobile by default."},
		{Kind: StepExpectVisible, Query: sidebarToggle},
		{Kind: StepClick, Query: sidebarToggle, Message: "- Clicked sidebar toggle button."},
		{Kind: StepExpectVisible, Query: sidebarText, Message: "- Sidebar is visible after toggle."},
		{Kind: StepScreenshot, File: MobileScreenshot, Message: "- Mobile screenshot captured."},
	}
	if cfg.VerifyToggleBack {
		steps = append(steps,
			Step{Kind: StepClick, Query: sidebarToggle, Message: "- Clicked sidebar toggle button again."},
			Step{Kind: StepExpectHidden, Query: sidebarText, Message: "- Sidebar is hidden after second toggle."},
		)
	}
	return Pass{
		Name:      "mobile",
		Profile:   browser.Mobile(cfg.MobileDevice),
		Banner:    "\nRunning mobile tests...",
		ErrorFile: MobileErrorShot,
		Steps:     steps,
	}
}
