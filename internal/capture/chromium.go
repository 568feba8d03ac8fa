package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	appLog "whatsnext/internal/log"
)

// Default viewport for page snapshots: a typical laptop split view.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 800
	DefaultTimeout = 30 * time.Second
)

// ReadySelector matches the body once the layout has rendered.
const ReadySelector = `body[data-ready="true"]`

var (
	ErrNoURL        = errors.New("capture: URL is required")
	ErrNoOutputPath = errors.New("capture: OutputPath is required")
)

// SnapshotOptions defines a headless Chromium screenshot of one page.
type SnapshotOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar?event=jazz-night".
	URL string

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport in pixels. Zero means the default.
	Width  int
	Height int

	// Timeout bounds browser start, navigation and capture together.
	Timeout time.Duration

	// FullPage captures the whole document instead of the viewport.
	FullPage bool
}

func (o SnapshotOptions) withDefaults() (SnapshotOptions, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.OutputPath == "" {
		return o, ErrNoOutputPath
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// tasks builds the chromedp action list; the screenshot lands in *png.
func (o SnapshotOptions) tasks(png *[]byte) chromedp.Tasks {
	shot := chromedp.CaptureScreenshot(png)
	if o.FullPage {
		shot = chromedp.FullScreenshot(png, 100)
	}
	return chromedp.Tasks{
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// let web fonts and background images settle
		chromedp.Sleep(300 * time.Millisecond),
		shot,
	}
}

// Snapshot launches headless Chromium, loads opts.URL, waits for the page
// to mark itself ready and writes a PNG to opts.OutputPath.
func Snapshot(parentCtx context.Context, opts SnapshotOptions) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	started := time.Now()
	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("snapshot written",
		"url", opts.URL,
		"path", opts.OutputPath,
		"bytes", len(png),
		"took", time.Since(started).Round(time.Millisecond),
	)
	return nil
}
