package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"hopper/internal/ack"
	"hopper/internal/config"
	"hopper/internal/deps"
	"hopper/internal/logging"
	"hopper/internal/services"
	"hopper/internal/session"
)

// Options configures a browser transport.
type Options struct {
	ExecPath          string
	Headless          bool
	UserDataDir       string
	LoginURL          string
	UploadURL         string
	URLFilter         string
	NavigationTimeout time.Duration
	Selectors         config.Selectors
}

// OptionsFromConfig maps configuration onto transport options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ExecPath:          cfg.Browser.ExecPath,
		Headless:          cfg.Browser.Headless,
		UserDataDir:       cfg.Browser.UserDataDir,
		LoginURL:          cfg.Remote.LoginURL,
		UploadURL:         cfg.Remote.UploadURL,
		URLFilter:         cfg.Remote.ResponseURLFilter,
		NavigationTimeout: cfg.NavigationTimeout(),
		Selectors:         cfg.Browser.Selectors,
	}
}

// NewFactory returns a session.TransportFactory that launches a browser per call.
func NewFactory(opts Options, logger *slog.Logger) session.TransportFactory {
	return func(ctx context.Context) (session.Transport, error) {
		return Open(ctx, opts, logger)
	}
}

// Transport is a single browser tab owned by one upload session.
type Transport struct {
	opts   Options
	logger *slog.Logger

	browserCtx  context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	capture *capture

	closeOnce sync.Once
}

// Open launches the browser and starts capturing responses.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = time.Minute
	}
	execPath, err := deps.ResolveBrowser(opts.ExecPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "browser", "locate", "find browser executable", err)
	}
	opts.ExecPath = execPath

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...), logging.String(logging.FieldComponent, "chromedp"))
	}))

	t := &Transport{
		opts:        opts,
		logger:      logger,
		browserCtx:  tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}
	t.capture = newCapture(opts.URLFilter, t.fetchBody, logger)
	chromedp.ListenTarget(tabCtx, t.capture.handle)

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		_ = t.Close()
		return nil, services.Wrap(services.ErrExternalTool, "browser", "launch", "start browser", err)
	}
	go t.capture.run(tabCtx)
	return t, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	options = append(options, chromedp.Flag("headless", opts.Headless))
	if strings.TrimSpace(opts.ExecPath) != "" {
		options = append(options, chromedp.ExecPath(opts.ExecPath))
	}
	if strings.TrimSpace(opts.UserDataDir) != "" {
		options = append(options, chromedp.UserDataDir(opts.UserDataDir))
	}
	return options
}

// Authenticate signs in through the login form. When a logged-in selector is
// configured it must become visible, otherwise the credentials are treated as
// rejected.
func (t *Transport) Authenticate(ctx context.Context, creds session.Credentials) error {
	if t.opts.LoginURL == "" {
		return services.Wrap(services.ErrConfiguration, "browser", "authenticate", "remote.login_url is not set", nil)
	}
	sel := t.opts.Selectors
	err := t.run(ctx, "open login page",
		chromedp.Navigate(t.opts.LoginURL),
		chromedp.WaitVisible(sel.Username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Username, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Password, creds.Password, chromedp.ByQuery),
		chromedp.Click(sel.LoginSubmit, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	if sel.LoggedIn == "" {
		return nil
	}
	if err := t.run(ctx, "confirm login", chromedp.WaitVisible(sel.LoggedIn, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", session.ErrRejected, err)
	}
	return nil
}

// Submit opens the upload page and hands the file to its file input.
func (t *Transport) Submit(ctx context.Context, path string) error {
	if t.opts.UploadURL == "" {
		return services.Wrap(services.ErrConfiguration, "browser", "submit", "remote.upload_url is not set", nil)
	}
	return t.run(ctx, "submit file",
		chromedp.Navigate(t.opts.UploadURL),
		chromedp.WaitReady(t.opts.Selectors.FileInput, chromedp.ByQuery),
		chromedp.SetUploadFiles(t.opts.Selectors.FileInput, []string{path}, chromedp.ByQuery),
	)
}

// Next returns the next captured response.
func (t *Transport) Next(ctx context.Context) (ack.Response, error) {
	return t.capture.next(ctx)
}

// Close shuts down the browser. It is safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.capture.close()
		if cerr := chromedp.Cancel(t.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
		t.cancelTab()
		t.cancelAlloc()
	})
	return err
}

// run executes actions in the tab, bounded by the navigation timeout and by ctx.
func (t *Transport) run(ctx context.Context, step string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(t.browserCtx, t.opts.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "browser", step, fmt.Sprintf("no progress within %s", t.opts.NavigationTimeout), err)
		}
		return services.Wrap(services.ErrExternalTool, "browser", step, "", err)
	}
	return nil
}

func (t *Transport) fetchBody(ctx context.Context, id network.RequestID) ([]byte, error) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	return body, err
}
