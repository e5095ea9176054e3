package cmacgm

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

// Scraper reads tables from web pages.
type Scraper interface {
	// Table loads url, waits for selector and returns the table's rows as
	// cell text, header row first
	Table(ctx context.Context, url, selector string) ([][]string, error)
	// Reachable loads url and reports any navigation failure
	Reachable(ctx context.Context, url string) error
}

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	// RemoteURL points at a running Chrome DevTools endpoint; empty launches a local browser
	RemoteURL string
	NoSandbox bool
	Timeout   time.Duration
}

// ChromeScraper drives headless Chrome through the DevTools protocol.
type ChromeScraper struct {
	config ChromeConfig
	logger *zap.Logger
}

// NewChromeScraper creates a scraper. The browser starts per call.
func NewChromeScraper(config ChromeConfig, logger *zap.Logger) *ChromeScraper {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &ChromeScraper{config: config, logger: logger}
}

const tableRowsJS = `(function(sel) {
  var table = document.querySelector(sel);
  if (!table) { return []; }
  return Array.from(table.querySelectorAll('tr')).map(function(tr) {
    return Array.from(tr.querySelectorAll('th,td')).map(function(c) { return c.innerText.trim(); });
  });
})(%q)`

// Table implements Scraper.
func (s *ChromeScraper) Table(ctx context.Context, url, selector string) ([][]string, error) {
	var rows [][]string
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(tableRowsJS, selector), &rows),
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Reachable implements Scraper.
func (s *ChromeScraper) Reachable(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeScraper) run(ctx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if s.config.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, s.config.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
		)
		if s.config.NoSandbox {
			opts = append(opts, chromedp.Flag("no-sandbox", true))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			s.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Wrap(err, errors.ErrorTypeTimeout, fmt.Sprintf("portal did not respond within %v", s.config.Timeout))
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "portal scraping failed")
	}
	return nil
}
