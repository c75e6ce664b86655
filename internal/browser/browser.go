// Package browser drives a headless Chromium through go-rod. Every Open call
// launches its own browser process, and Close tears it down again.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrLaunch wraps failures to start or connect to the browser runtime.
var ErrLaunch = errors.New("browser launch failed")

// Launcher opens isolated browser sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a single page in a browser the session owns.
type Session interface {
	// Navigate loads url and waits for the load event.
	Navigate(url string) error
	// Input replaces the text of the element matched by selector.
	Input(selector, text string) error
	// WaitFor blocks until js, a function expression, returns a truthy value.
	WaitFor(js string) error
	// Eval runs js, a function expression, and returns its result as a string.
	Eval(js string) (string, error)
	// Close closes the page, the browser and its process.
	Close() error
}

// RodLauncher launches a local Chromium per session.
type RodLauncher struct {
	// BinPath is the browser binary; empty lets rod find or download one.
	BinPath  string
	Headless bool
}

// Open launches a browser bound to ctx. The returned session stops working
// once ctx is done. Launch failures wrap ErrLaunch.
func (l RodLauncher) Open(ctx context.Context) (Session, error) {
	lnch := launcher.New().Context(ctx).Headless(l.Headless).Leakless(true)
	if l.BinPath != "" {
		lnch = lnch.Bin(l.BinPath)
	}

	controlURL, err := lnch.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		lnch.Kill()
		lnch.Cleanup()
		return nil, fmt.Errorf("%w: connect: %v", ErrLaunch, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		lnch.Kill()
		lnch.Cleanup()
		return nil, fmt.Errorf("%w: open page: %v", ErrLaunch, err)
	}

	return &rodSession{launcher: lnch, browser: browser, page: page}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *rodSession) Navigate(url string) error {
	if err := s.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := s.page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (s *rodSession) Input(selector, text string) error {
	el, err := s.page.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input into %s: %w", selector, err)
	}
	return nil
}

func (s *rodSession) WaitFor(js string) error {
	if err := s.page.Wait(rod.Eval(js)); err != nil {
		return fmt.Errorf("wait for condition: %w", err)
	}
	return nil
}

func (s *rodSession) Eval(js string) (string, error) {
	res, err := s.page.Eval(js)
	if err != nil {
		return "", fmt.Errorf("eval: %w", err)
	}
	return res.Value.Str(), nil
}

// Close releases everything the session holds. It is safe to call after the
// session's context has been cancelled.
func (s *rodSession) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.browser.Context(closeCtx).Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
