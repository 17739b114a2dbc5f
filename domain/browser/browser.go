// Package browser provides a Chrome DevTools Protocol capture backend for the
// locator. It deliberately stops at session lifecycle, navigation and
// screenshots; input dispatch and printing stay with the driver.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/soocke/vision-bot-go/domain/vision"
)

// Viewport dimensions reported when the page cannot be asked, matching the
// dimensions the bot assumes before a browser is started.
const (
	DefaultWidth  = 1600
	DefaultHeight = 900
)

// Options configures the browser session.
type Options struct {
	Headless    bool
	Width       int
	Height      int
	UserAgent   string
	DownloadDir string
	ExecPath    string // custom Chrome binary; empty resolves from PATH
}

// Session owns one browser process and one tab. All methods are safe to call
// from the single goroutine driving a bot instance; the session is not meant
// to be shared.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	logger      *slog.Logger
}

// Start launches the browser and opens a blank tab.
func Start(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		logger:      logger,
	}

	// Starting the process eagerly surfaces a missing binary here instead of
	// on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: start: %w", err)
	}
	if opts.DownloadDir != "" {
		err := chromedp.Run(tabCtx,
			cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(opts.DownloadDir),
		)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("browser: set download dir: %w", err)
		}
	}
	if logger != nil {
		logger.Debug("browser started", "headless", opts.Headless, "width", opts.Width, "height", opts.Height)
	}
	return s, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// run executes actions on the session tab while honoring cancellation of the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// Title returns the current page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("browser: title: %w", err)
	}
	return title, nil
}

// Capture takes a viewport screenshot, optionally clipped to region, and
// returns RGBA pixels. Implements capture.Provider.
func (s *Session) Capture(ctx context.Context, region *image.Rectangle) (*image.RGBA, error) {
	var buf []byte
	shot := chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if region != nil && !region.Empty() {
			params = params.WithClip(&page.Viewport{
				X:      float64(region.Min.X),
				Y:      float64(region.Min.Y),
				Width:  float64(region.Dx()),
				Height: float64(region.Dy()),
				Scale:  1,
			})
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	})
	if err := s.run(ctx, shot); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("browser: decode screenshot: %w", err)
	}
	return vision.ToRGBA(img), nil
}

// ViewportSize reports the page's inner dimensions. Implements
// capture.Provider. Falls back to the default dimensions when the page cannot
// be queried.
func (s *Session) ViewportSize(ctx context.Context) (int, int, error) {
	var w, h int
	err := s.run(ctx,
		chromedp.Evaluate("window.innerWidth", &w),
		chromedp.Evaluate("window.innerHeight", &h),
	)
	if err != nil || w <= 0 || h <= 0 {
		return DefaultWidth, DefaultHeight, nil
	}
	return w, h, nil
}
