package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Engine string

const (
	EnginePlaywright Engine = "playwright"
	EngineRod        Engine = "rod"
	EngineChromedp   Engine = "chromedp"
)

// Driver launches isolated browser sessions. Every session owns its own
// browser process and exactly one page.
type Driver interface {
	Open(ctx context.Context, name string, profile Profile) (Session, error)
	Close() error
}

// Session is a single page inside its own browser. Close must be safe to
// call more than once.
type Session interface {
	Name() string
	Goto(ctx context.Context, url string, timeout time.Duration) error
	Locate(q Query) Locator
	Screenshot(ctx context.Context, path string, fullPage bool) error
	Close() error
}

// Locator is a lazy element query; it is resolved on every call.
type Locator interface {
	Count(ctx context.Context) (int, error)
	IsVisible(ctx context.Context) (bool, error)
	Click(ctx context.Context, timeout time.Duration) error
	String() string
}

type QueryKind string

const (
	QueryRole     QueryKind = "role"
	QueryText     QueryKind = "text"
	QuerySelector QueryKind = "selector"
)

// Query describes how to find an element. Role and text queries match
// case-insensitively on a substring unless Exact is set.
type Query struct {
	Kind     QueryKind `json:"kind" yaml:"kind"`
	Role     string    `json:"role,omitempty" yaml:"role,omitempty"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Text     string    `json:"text,omitempty" yaml:"text,omitempty"`
	Selector string    `json:"selector,omitempty" yaml:"selector,omitempty"`
	Exact    bool      `json:"exact,omitempty" yaml:"exact,omitempty"`
}

func ByRole(role, name string) Query {
	return Query{Kind: QueryRole, Role: role, Name: name}
}

func ByText(text string) Query {
	return Query{Kind: QueryText, Text: text}
}

func BySelector(selector string) Query {
	return Query{Kind: QuerySelector, Selector: selector}
}

func (q Query) String() string {
	switch q.Kind {
	case QueryRole:
		return fmt.Sprintf("role=%s[name=%q]", q.Role, q.Name)
	case QueryText:
		return fmt.Sprintf("text=%q", q.Text)
	default:
		return q.Selector
	}
}

type Options struct {
	Headless       bool
	InstallBrowser bool
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewDriver starts the named engine.
func NewDriver(engine Engine, opts Options) (Driver, error) {
	switch engine {
	case EnginePlaywright, "":
		return NewPlaywrightDriver(opts)
	case EngineRod:
		return NewRodDriver(opts), nil
	case EngineChromedp:
		return NewChromedpDriver(opts), nil
	}
	return nil, errors.Errorf("unknown browser engine %q", engine)
}
