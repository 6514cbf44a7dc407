package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/user/cian-crawler/internal/proxy"
)

// Session owns one headless browser reused for every region in a run.
// It is the boundary to the browsing collaborator: navigation, settle
// waits, current URL and full-page markup.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewSession starts a headless browser. The user agent and (optional)
// proxy are drawn from the manager once per session.
func NewSession(pm *proxy.Manager) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if ua := pm.GetUserAgent(); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := pm.GetProxy(); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a broken Chrome install surfaces here
	// rather than on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}

	return &Session{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// Navigate loads the URL and then waits the fixed settle tolerance,
// giving client-side redirects time to land.
func (s *Session) Navigate(ctx context.Context, url string, settle time.Duration) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
	)
}

// CurrentURL reports where the browser ended up after the last
// navigation, redirects included.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// HTML returns the full current page markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var markup string
	if err := s.run(ctx, chromedp.OuterHTML("html", &markup)); err != nil {
		return "", err
	}
	return markup, nil
}

func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

// run executes actions on the session's browser context, honoring
// cancellation of the caller's context between actions.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, actions...)
}
