package browser

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// DefaultPageLoadTimeout bounds browser startup and configuration.
const DefaultPageLoadTimeout = 30 * time.Second

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Table           Table
	Logger          zerolog.Logger
	PageLoadTimeout time.Duration
}

// Manager creates browser sessions.
type Manager struct {
	table   Table
	log     zerolog.Logger
	timeout time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewManager returns a Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = DefaultPageLoadTimeout
	}
	now := uint64(time.Now().UnixNano())
	return &Manager{
		table:   opts.Table,
		log:     opts.Logger,
		timeout: opts.PageLoadTimeout,
		rnd:     rand.New(rand.NewPCG(now, now^0x5deece66d)),
	}
}

// NewSession launches Chrome with the stealth profile and downloads
// directed into downloadDir. The caller must Release the session.
func (m *Manager) NewSession(ctx context.Context, downloadDir string, opts StealthOptions) (*Session, error) {
	if downloadDir == "" {
		return nil, &SessionCreationError{Message: "download directory is required"}
	}
	m.mu.Lock()
	opts = opts.resolve(m.rnd)
	m.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { m.log.Debug().Msgf(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...any) { m.log.Debug().Msgf(format, args...) }),
	)
	driver := &ChromeDriver{tabCtx: tabCtx, tabCancel: tabCancel, allocCancel: allocCancel}

	setupCtx, setupCancel := context.WithTimeout(ctx, m.timeout)
	defer setupCancel()
	stop := context.AfterFunc(setupCtx, tabCancel)

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if paused, ok := ev.(*fetch.EventRequestPaused); ok {
			go func() {
				c := chromedp.FromContext(tabCtx)
				if c == nil || c.Target == nil {
					return
				}
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).
					Do(cdp.WithExecutor(tabCtx, c.Target))
			}()
		}
	})

	// The first Run allocates the browser and binds it to tabCtx.
	err := chromedp.Run(tabCtx,
		network.Enable(),
		fetch.Enable().WithPatterns(blockPatterns()),
		emulation.SetUserAgentOverride(opts.UserAgent).WithAcceptLanguage(opts.AcceptLanguage),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	stopped := stop()
	if err != nil || !stopped {
		_ = driver.Close()
		if err == nil {
			err = setupCtx.Err()
		}
		return nil, &SessionCreationError{Message: "failed to start browser", Cause: err}
	}

	m.log.Info().
		Bool("headless", opts.Headless).
		Int("width", opts.WindowWidth).
		Int("height", opts.WindowHeight).
		Str("download_dir", downloadDir).
		Msg("browser session created")

	return NewSessionWithDriver(driver, downloadDir, m.table, m.log), nil
}

func blockPatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(BlockedURLPatterns))
	for _, p := range BlockedURLPatterns {
		patterns = append(patterns, &fetch.RequestPattern{URLPattern: p})
	}
	return patterns
}

// Session is one live browser bound to a download directory.
type Session struct {
	driver      Driver
	downloadDir string
	locator     *Locator
	log         zerolog.Logger

	mu            sync.Mutex
	authenticated bool
	released      bool
	releaseOnce   sync.Once
}

// NewSessionWithDriver wraps an existing Driver.
func NewSessionWithDriver(driver Driver, downloadDir string, table Table, log zerolog.Logger) *Session {
	return &Session{
		driver:      driver,
		downloadDir: downloadDir,
		locator:     NewLocator(driver, table, log),
		log:         log,
	}
}

func (s *Session) Driver() Driver      { return s.driver }
func (s *Session) DownloadDir() string { return s.downloadDir }
func (s *Session) Locator() *Locator   { return s.locator }

// Authenticated reports whether login has been confirmed on this session.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) markAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
}

// Released reports whether Release has run.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release shuts the browser down. It is safe to call more than once and
// never fails; close errors are logged.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		if err := s.driver.Close(); err != nil {
			s.log.Warn().Err(err).Msg("browser close failed")
		}
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		s.log.Debug().Msg("browser session released")
	})
}
