package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/simple-container-com/go-aws-lambda-sdk/pkg/util/retry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/integrail/ui-verify/internal/build"
	"github.com/integrail/ui-verify/pkg/browser"
	"github.com/integrail/ui-verify/pkg/verify"
)

var errChecksFailed = errors.New("verification failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if errors.Is(err, errChecksFailed) {
		stop()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := verify.DefaultConfig()
	var (
		configPath string
		logger     = zap.NewNop()
	)

	rootCmd := &cobra.Command{
		Use:     "ui-verify",
		Version: build.Version,
		Short:   "Verifies the news UI layout in desktop and mobile browsers",
		Long: `Opens the application in a desktop and a mobile (iPhone 13) browser,
checks that the old navbar links are gone, that the "Popular Topics" and
"All News" sections render and that the mobile sidebar toggle works, and
captures screenshots of both views.

Failed checks are reported on stdout; the exit status stays 0 unless
--fail-exit-code is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := applyConfigFile(cmd.Flags(), configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			l, err := newLogger(cfg.Verbose)
			if err != nil {
				return errors.Wrapf(err, "failed to initialize logger")
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := run(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if !res.OK() && cfg.FailExitCode {
				return errChecksFailed
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file, explicitly set flags take precedence")
	bindFlags(rootCmd.PersistentFlags(), &cfg)
	return rootCmd
}

func bindFlags(fs *pflag.FlagSet, cfg *verify.Config) {
	fs.StringVarP(&cfg.TargetURL, "url", "u", cfg.TargetURL, "URL of the application under test")
	fs.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "Directory screenshots are written to")
	fs.StringVarP(&cfg.Engine, "engine", "e", cfg.Engine, "Browser engine: playwright, rod or chromedp")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run chromium headless")
	fs.BoolVar(&cfg.InstallBrowsers, "install", cfg.InstallBrowsers, "Install playwright browsers before launching")
	fs.StringVarP(&cfg.MobileDevice, "device", "D", cfg.MobileDevice, fmt.Sprintf("Mobile device profile (%v)", browser.KnownDevices()))
	fs.StringVar(&cfg.NavigationTimeout, "navigation-timeout", cfg.NavigationTimeout, "Max time to load the page (duration, e.g. 20s)")
	fs.StringVar(&cfg.VisibilityTimeout, "visibility-timeout", cfg.VisibilityTimeout, "Max time to wait for the section headings")
	fs.StringVar(&cfg.AssertTimeout, "assert-timeout", cfg.AssertTimeout, "Max time to wait for every other check")
	fs.StringVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Interval between visibility checks")
	fs.IntVar(&cfg.LaunchRetries, "launch-retries", cfg.LaunchRetries, "Attempts to start the browser engine")
	fs.BoolVarP(&cfg.Parallel, "parallel", "p", cfg.Parallel, "Run the desktop and mobile passes concurrently")
	fs.BoolVar(&cfg.VerifyToggleBack, "toggle-back", cfg.VerifyToggleBack, "Also check that a second toggle click hides the sidebar")
	fs.BoolVar(&cfg.FailExitCode, "fail-exit-code", cfg.FailExitCode, "Exit with status 1 when a check fails")
	fs.BoolVarP(&cfg.Interactive, "interactive", "i", cfg.Interactive, "Render progress with a spinner")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Debug logging to stderr")
}

// applyConfigFile loads path over the defaults and re-applies every flag
// the user set explicitly.
func applyConfigFile(flags *pflag.FlagSet, path string) (verify.Config, error) {
	cfg, err := verify.LoadConfig(path, verify.DefaultConfig())
	if err != nil {
		return cfg, err
	}
	fileFlags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	bindFlags(fileFlags, &cfg)
	flags.Visit(func(f *pflag.Flag) {
		if err != nil || fileFlags.Lookup(f.Name) == nil {
			return
		}
		err = fileFlags.Set(f.Name, f.Value.String())
	})
	return cfg, errors.Wrapf(err, "failed to apply flags over %s", path)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lo.If(verbose, zapcore.DebugLevel).Else(zapcore.WarnLevel))
	return config.Build()
}

func run(ctx context.Context, cfg verify.Config, logger *zap.Logger) (*verify.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := startDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("failed to stop browser engine", zap.String("engine", cfg.Engine), zap.Error(err))
		}
	}()

	verifyFn := func(ctx context.Context, reporter verify.Reporter) (*verify.Result, error) {
		return verify.NewRunner(cfg, driver, reporter, verify.WithLogger(logger)).Run(ctx)
	}
	if cfg.Interactive {
		return verify.RunInteractive(ctx, cfg.TargetURL, verifyFn)
	}
	return verifyFn(ctx, verify.NewConsoleReporter(os.Stdout))
}

// launchBackoff is the pause between failed engine starts.
var launchBackoff = time.Second

func startDriver(cfg verify.Config, logger *zap.Logger) (browser.Driver, error) {
	attempts := lo.If(cfg.LaunchRetries <= 0, 1).Else(cfg.LaunchRetries)
	driver, err := retry.With(retry.Config[browser.Driver]{
		AttemptErrorCallback: func(i int, err error) {
			logger.Warn("failed to start browser engine", zap.String("engine", cfg.Engine), zap.Int("attempt", i), zap.Error(err))
			if i < attempts {
				time.Sleep(launchBackoff)
			}
		},
		Action: func() (browser.Driver, error) {
			return browser.NewDriver(browser.Engine(cfg.Engine), browser.Options{
				Headless:       cfg.Headless,
				InstallBrowser: cfg.InstallBrowsers,
				Logger:         logger.Named(cfg.Engine),
			})
		},
		MaxRetries: attempts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s engine", cfg.Engine)
	}
	return *driver, nil
}
