package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/integrail/ui-verify/pkg/browser"
)

// NavigationError means the target could not be loaded in time.
type NavigationError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NavigationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("navigation to %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// VisibilityError means an element did not reach the wanted visibility
// state before the timeout.
type VisibilityError struct {
	Locator string
	Visible bool
	Timeout time.Duration
}

func (e *VisibilityError) Error() string {
	want := "visible"
	if !e.Visible {
		want = "hidden"
	}
	return fmt.Sprintf("expected %s to be %s within %s", e.Locator, want, e.Timeout)
}

// LocatorError means a query resolved to an unusable number of elements.
type LocatorError struct {
	Locator string
	Count   int
}

func (e *LocatorError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("locator %s did not match any element", e.Locator)
	}
	return fmt.Sprintf("strict mode violation: locator %s resolved to %d elements", e.Locator, e.Count)
}

func newNavigationError(url string, err error) *NavigationError {
	return &NavigationError{URL: url, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	return errors.Is(err, browser.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
