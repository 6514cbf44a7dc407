package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/cian-crawler/internal/domain"
	"github.com/user/cian-crawler/internal/monitoring"
)

// captchaSelector matches the challenge container the site injects when
// it decides the session is a bot.
const captchaSelector = "div.bubbles"

// Session is the browsing capability the fetcher drives.
type Session interface {
	Navigate(ctx context.Context, url string, settle time.Duration) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
}

// Store persists fetched page markup.
type Store interface {
	Write(r domain.Region, page int, markup string) error
}

// Fetcher walks each region's paginated search results and saves every
// page to the snapshot store. One browser session is shared by all
// regions of a run.
type Fetcher struct {
	session    Session
	store      Store
	settle     time.Duration
	pageSettle time.Duration
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func New(session Session, store Store, settle, pageSettle time.Duration, m *monitoring.Metrics, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		session:    session,
		store:      store,
		settle:     settle,
		pageSettle: pageSettle,
		metrics:    m,
		logger:     logger,
	}
}

// Run fetches up to finalPage result pages for every region, in
// configuration order. A region that fails is logged and skipped; it
// never aborts the run.
func (f *Fetcher) Run(ctx context.Context, regions []domain.Region, finalPage int) []domain.FetchReport {
	start := time.Now()
	reports := make([]domain.FetchReport, 0, len(regions))

	for _, region := range regions {
		if ctx.Err() != nil {
			break
		}
		rep := f.fetchRegion(ctx, region, finalPage)
		f.metrics.IncFetchStops(rep.Reason.String())
		reports = append(reports, rep)
	}

	f.logger.Info("fetch run finished",
		zap.Int("regions", len(reports)),
		zap.Duration("took", time.Since(start)),
	)
	return reports
}

func (f *Fetcher) fetchRegion(ctx context.Context, region domain.Region, finalPage int) domain.FetchReport {
	rep := domain.FetchReport{Region: region, Reason: domain.Completed}
	log := f.logger.With(zap.String("city", region.City), zap.Int("region", region.Code))

	// Warm up the session: the root first, then the query without
	// pagination — the paginated URL does not open cold.
	for _, u := range []string{rootURL, queryURL(region)} {
		if err := f.session.Navigate(ctx, u, f.settle); err != nil {
			return f.fail(log, rep, err)
		}
	}

	// The p=1 URL is the redirect reference: whatever the browser lands
	// on here is what an out-of-range page silently redirects back to.
	if err := f.session.Navigate(ctx, pageURL(region, 1), f.settle); err != nil {
		return f.fail(log, rep, err)
	}
	firstPageURL, err := f.session.CurrentURL(ctx)
	if err != nil {
		return f.fail(log, rep, err)
	}

	for i := 1; i <= finalPage; i++ {
		if err := f.session.Navigate(ctx, pageURL(region, i), f.pageSettle); err != nil {
			return f.fail(log, rep, err)
		}
		current, err := f.session.CurrentURL(ctx)
		if err != nil {
			return f.fail(log, rep, err)
		}
		if i > 1 && current == firstPageURL {
			rep.Reason = domain.EndOfResults
			log.Info("redirected to first page, no more results",
				zap.Int("last_page", i-1))
			return rep
		}

		markup, err := f.session.HTML(ctx)
		if err != nil {
			return f.fail(log, rep, err)
		}
		if hasCaptcha(markup) {
			rep.Reason = domain.BlockedByChallenge
			log.Warn("captcha challenge shown, stopping region",
				zap.Int("last_page", i-1))
			return rep
		}

		if err := f.store.Write(region, i, markup); err != nil {
			return f.fail(log, rep, err)
		}
		rep.PagesSaved = i
		f.metrics.IncPagesFetched(region.City)
		log.Info("page saved", zap.Int("page", i))
	}

	log.Info("region completed", zap.Int("pages_saved", rep.PagesSaved))
	return rep
}

func (f *Fetcher) fail(log *zap.Logger, rep domain.FetchReport, err error) domain.FetchReport {
	rep.Reason = domain.TransportError
	rep.Err = err
	f.metrics.IncErrorsTotal("navigation_failed")
	log.Error("region aborted", zap.Int("last_page", rep.PagesSaved), zap.Error(err))
	return rep
}

// hasCaptcha reports whether the markup contains the challenge
// container. A page that fails to parse is treated as captcha-free; the
// extractor will reject it later if it is actually broken.
func hasCaptcha(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find(captchaSelector).Length() > 0
}
