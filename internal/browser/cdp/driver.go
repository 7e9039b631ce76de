// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/internal/browser"
)

var defaultExecCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// Automation starts chromedp backed drivers.
type Automation struct {
	logger   *zap.Logger
	execPath string
}

var _ browser.Automation = (*Automation)(nil)

// New returns an Automation. execPath may be empty, in which case the usual
// Chrome binary names are searched on PATH.
func New(logger *zap.Logger, execPath string) *Automation {
	return &Automation{logger: logger.Named("cdp"), execPath: execPath}
}

// StartDriver locates a Chrome binary. chromedp drives the browser over the
// DevTools protocol directly, so there is no separate driver process.
func (a *Automation) StartDriver(ctx context.Context) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveExecPath(a.execPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Resolved browser executable.", zap.String("path", path))
	return &Driver{logger: a.logger, execPath: path}, nil
}

func resolveExecPath(requested string) (string, error) {
	candidates := make([]string, 0, len(defaultExecCandidates)+1)
	if path := strings.TrimSpace(requested); path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, defaultExecCandidates...)

	for _, candidate := range candidates {
		if strings.ContainsRune(candidate, os.PathSeparator) {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find a Chrome binary; tried %s", strings.Join(candidates, ", "))
}

// Driver owns the allocator of every browser it launched.
type Driver struct {
	logger   *zap.Logger
	execPath string

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, browser.ErrClosed
	}
	d.mu.Unlock()

	if opts.ExecPath == "" {
		opts.ExecPath = d.execPath
	}

	// The allocator outlives the launch call, so it is rooted in Background
	// and torn down by Driver.Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), buildAllocatorOptions(opts)...)
	sugar := d.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	if err := startTarget(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	d.mu.Lock()
	d.cancels = append(d.cancels, allocCancel)
	d.mu.Unlock()

	d.logger.Info("Browser launched.", zap.String("exec_path", opts.ExecPath), zap.Bool("headless", opts.Headless))
	return &Browser{ctx: browserCtx, cancel: browserCancel, logger: d.logger}, nil
}

// Close stops every allocator, which kills any browser process still alive
// and removes temporary profiles.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return browser.ErrClosed
	}
	d.closed = true
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()

	return bounded(ctx, func() error {
		for _, cancel := range cancels {
			cancel()
		}
		return nil
	})
}

// launchFlags maps launch options to Chrome command line flags. A false
// value removes a flag set by chromedp's defaults.
func launchFlags(opts browser.LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":           opts.Headless,
		"hide-scrollbars":    opts.Headless,
		"mute-audio":         opts.Headless,
		"enable-automation":  false,
		"disable-extensions": true,
		"disable-gpu":        opts.Headless,
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight)
	}
	if opts.UserDataDir != "" {
		flags["user-data-dir"] = opts.UserDataDir
	}

	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(arg, "=")
		name = strings.TrimPrefix(name, "--")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}

	// Container friendly defaults.
	if opts.NoSandbox || runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// buildAllocatorOptions layers the launch flags over chromedp's defaults.
func buildAllocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(opts) {
		out = append(out, chromedp.Flag(name, value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// startTarget runs the first action on a fresh chromedp context, which
// allocates its target. The run is not tied to ctx directly: canceling the
// context chromedp allocates with would tear the target down, so the wait is
// bounded with a select instead.
func startTarget(ctx context.Context, targetCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(targetCtx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bounded runs fn and gives up waiting when ctx ends. fn keeps running in the
// background in that case.
func bounded(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Browser is a running Chrome process.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (b *Browser) NewContext(ctx context.Context) (browser.BrowserContext, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, browser.ErrClosed
	}

	cctx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if err := startTarget(ctx, cctx); err != nil {
		cancel()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	bc := &BrowserContext{ctx: cctx, cancel: cancel, logger: b.logger}
	// The target created with the context is the first page.
	bc.initial = newPage(cctx, nil, b.logger)
	return bc, nil
}

// Close shuts the browser down gracefully. When ctx ends first the browser
// context is canceled, which makes chromedp kill the process.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return browser.ErrClosed
	}
	b.closed = true
	b.mu.Unlock()

	err := bounded(ctx, func() error { return chromedp.Cancel(b.ctx) })
	b.cancel()
	return err
}
