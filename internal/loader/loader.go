package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/cian-crawler/internal/domain"
	"github.com/user/cian-crawler/internal/monitoring"
)

// Snapshots is the read side of the snapshot store.
type Snapshots interface {
	Pages(r domain.Region) ([]int, error)
	Read(r domain.Region, page int) (string, error)
	Path(r domain.Region, page int) string
}

// Extractor turns one snapshot's markup into offer/house pairs.
type Extractor interface {
	Extract(markup string, region domain.Region) ([]domain.Pair, error)
}

// Writer persists one pair.
type Writer interface {
	UpsertPair(ctx context.Context, pair domain.Pair) error
}

// Marks tracks which snapshots have been fully loaded. Optional.
type Marks interface {
	IsProcessed(ctx context.Context, snapshotPath string) (bool, error)
	MarkProcessed(ctx context.Context, snapshotPath string, ttl time.Duration) error
}

// Loader walks every region's saved snapshots and upserts the extracted
// pairs. A malformed snapshot or a failing record is logged and skipped;
// the run keeps going.
type Loader struct {
	snaps     Snapshots
	extractor Extractor
	writer    Writer
	marks     Marks
	markTTL   time.Duration
	reload    bool
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func New(snaps Snapshots, ex Extractor, w Writer, marks Marks, markTTL time.Duration, reload bool, m *monitoring.Metrics, logger *zap.Logger) *Loader {
	return &Loader{
		snaps:     snaps,
		extractor: ex,
		writer:    w,
		marks:     marks,
		markTTL:   markTTL,
		reload:    reload,
		metrics:   m,
		logger:    logger,
	}
}

// Run processes regions in configuration order. It returns an error
// only when the run context is cancelled; per-snapshot and per-record
// failures are contained.
func (l *Loader) Run(ctx context.Context, regions []domain.Region) error {
	start := time.Now()
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.loadRegion(ctx, region)
	}
	l.logger.Info("load run finished",
		zap.Int("regions", len(regions)),
		zap.Duration("took", time.Since(start)),
	)
	return ctx.Err()
}

func (l *Loader) loadRegion(ctx context.Context, region domain.Region) {
	log := l.logger.With(zap.String("city", region.City), zap.Int("region", region.Code))

	pages, err := l.snaps.Pages(region)
	if err != nil {
		l.metrics.IncErrorsTotal("snapshot_list_failed")
		log.Error("cannot list snapshots", zap.Error(err))
		return
	}
	if len(pages) == 0 {
		log.Info("no snapshots for region")
		return
	}

	for _, page := range pages {
		if ctx.Err() != nil {
			return
		}
		l.loadSnapshot(ctx, log, region, page)
	}
	log.Info("region loaded", zap.Int("snapshots", len(pages)))
}

func (l *Loader) loadSnapshot(ctx context.Context, log *zap.Logger, region domain.Region, page int) {
	key := l.snaps.Path(region, page)

	if l.marks != nil && !l.reload {
		processed, err := l.marks.IsProcessed(ctx, key)
		if err != nil {
			log.Warn("processed-marker lookup failed, loading anyway",
				zap.String("snapshot", key), zap.Error(err))
		} else if processed {
			l.metrics.SnapshotsSkipped.Inc()
			log.Debug("snapshot already loaded", zap.String("snapshot", key))
			return
		}
	}

	markup, err := l.snaps.Read(region, page)
	if err != nil {
		l.metrics.IncErrorsTotal("snapshot_read_failed")
		log.Error("cannot read snapshot", zap.String("snapshot", key), zap.Error(err))
		return
	}

	pairs, err := l.extractor.Extract(markup, region)
	if err != nil {
		l.metrics.IncErrorsTotal("snapshot_malformed")
		log.Error("snapshot skipped", zap.String("snapshot", key), zap.Error(err))
		return
	}

	// A failing record aborts only itself; the snapshot is marked
	// processed only when every pair committed, so a re-run retries the
	// failed ones.
	complete := true
	for _, pair := range pairs {
		if err := l.writer.UpsertPair(ctx, pair); err != nil {
			complete = false
			l.metrics.IncErrorsTotal("db_upsert_failed")
			log.Error("upsert failed",
				zap.Int64("offer_id", pair.Offer.OfferID), zap.Error(err))
			continue
		}
		l.metrics.PairsUpserted.Inc()
	}

	if complete && l.marks != nil {
		if err := l.marks.MarkProcessed(ctx, key, l.markTTL); err != nil {
			log.Warn("cannot mark snapshot processed",
				zap.String("snapshot", key), zap.Error(err))
		}
	}
	log.Info("snapshot loaded",
		zap.Int("page", page), zap.Int("offers", len(pairs)))
}
