package verify

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/integrail/ui-verify/pkg/browser"
)

// expectVisibility polls loc until its visibility equals want or timeout
// elapses. A locator matching more than one element fails immediately, a
// locator matching nothing counts as hidden.
func expectVisibility(ctx context.Context, loc browser.Locator, want bool, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		visible, err := resolveVisible(ctx, loc)
		if err != nil {
			return err
		}
		if visible == want {
			return nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return &VisibilityError{Locator: loc.String(), Visible: want, Timeout: timeout}
		}
		wait := poll
		if left < wait {
			wait = left
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "waiting for %s", loc)
		case <-timer.C:
		}
	}
}

func resolveVisible(ctx context.Context, loc browser.Locator) (bool, error) {
	n, err := loc.Count(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "failed to resolve %s", loc)
	}
	switch {
	case n == 0:
		return false, nil
	case n > 1:
		return false, &LocatorError{Locator: loc.String(), Count: n}
	}
	visible, err := loc.IsVisible(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check visibility of %s", loc)
	}
	return visible, nil
}
