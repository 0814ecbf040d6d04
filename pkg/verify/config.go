package verify

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/integrail/ui-verify/pkg/browser"
)

const (
	DefaultTargetURL = "http://localhost:5000"
	DefaultOutputDir = "jules-scratch/verification"
)

type Config struct {
	TargetURL         string `json:"targetURL" yaml:"targetURL"`
	OutputDir         string `json:"outputDir" yaml:"outputDir"`
	Engine            string `json:"engine" yaml:"engine"`                       // playwright, rod or chromedp
	Headless          bool   `json:"headless" yaml:"headless"`                   // run headless chromium (default: true)
	InstallBrowsers   bool   `json:"installBrowsers" yaml:"installBrowsers"`     // download playwright browsers before launching
	MobileDevice      string `json:"mobileDevice" yaml:"mobileDevice"`           // device profile of the mobile session (default: iPhone 13)
	NavigationTimeout string `json:"navigationTimeout" yaml:"navigationTimeout"` // duration string in go duration format (e.g.: 20s)
	VisibilityTimeout string `json:"visibilityTimeout" yaml:"visibilityTimeout"` // polling timeout of the heading checks
	AssertTimeout     string `json:"assertTimeout" yaml:"assertTimeout"`         // polling timeout of every other assertion
	PollInterval      string `json:"pollInterval" yaml:"pollInterval"`
	LaunchRetries     int    `json:"launchRetries" yaml:"launchRetries"` // attempts to start the browser engine
	Parallel          bool   `json:"parallel" yaml:"parallel"`
	VerifyToggleBack  bool   `json:"verifyToggleBack" yaml:"verifyToggleBack"` // click the sidebar toggle again and expect it closed
	FailExitCode      bool   `json:"failExitCode" yaml:"failExitCode"`         // exit with status 1 when a check fails
	Interactive       bool   `json:"interactive" yaml:"interactive"`
	Verbose           bool   `json:"verbose" yaml:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		TargetURL:         DefaultTargetURL,
		OutputDir:         DefaultOutputDir,
		Engine:            string(browser.EnginePlaywright),
		Headless:          true,
		MobileDevice:      browser.DefaultMobileDevice,
		NavigationTimeout: "20s",
		VisibilityTimeout: "15s",
		AssertTimeout:     "5s",
		PollInterval:      "100ms",
		LaunchRetries:     1,
	}
}

// LoadConfig reads a YAML file on top of base. Keys missing from the file
// keep their base values.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch browser.Engine(c.Engine) {
	case browser.EnginePlaywright, browser.EngineRod, browser.EngineChromedp:
	default:
		return errors.Errorf("unsupported engine %q", c.Engine)
	}
	if c.TargetURL == "" {
		return errors.Errorf("target URL must not be empty")
	}
	for name, value := range map[string]string{
		"navigationTimeout": c.NavigationTimeout,
		"visibilityTimeout": c.VisibilityTimeout,
		"assertTimeout":     c.AssertTimeout,
		"pollInterval":      c.PollInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return errors.Wrapf(err, "invalid %s %q", name, value)
		}
	}
	return nil
}

// Timeouts resolves the duration strings, falling back to the defaults for
// empty or malformed values.
func (c Config) Timeouts() Timeouts {
	return Timeouts{
		Navigation: durationOr(c.NavigationTimeout, 20*time.Second),
		Visibility: durationOr(c.VisibilityTimeout, 15*time.Second),
		Assert:     durationOr(c.AssertTimeout, 5*time.Second),
		Poll:       durationOr(c.PollInterval, 100*time.Millisecond),
	}
}

type Timeouts struct {
	Navigation time.Duration
	Visibility time.Duration
	Assert     time.Duration
	Poll       time.Duration
}

func durationOr(value string, def time.Duration) time.Duration {
	if dur, err := time.ParseDuration(value); err == nil && dur > 0 {
		return dur
	}
	return def
}
