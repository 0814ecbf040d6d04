package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"
)

// ErrTimeout is wrapped into every engine error caused by running out of
// time, whether the deadline was ours, the engine's or the network stack's.
var ErrTimeout = errors.New("timeout")

var netTimeouts = []string{"net::ERR_TIMED_OUT", "net::ERR_CONNECTION_TIMED_OUT"}

func markTimeout(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	msg := err.Error()
	for _, code := range netTimeouts {
		if strings.Contains(msg, code) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}
	return err
}
