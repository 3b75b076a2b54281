package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"pawmatch/internal/util"
	"pawmatch/pkg/metrics"
	"pawmatch/pkg/queue"
	"pawmatch/pkg/storage"
)

// Config holds runtime configuration for the resize worker.
type Config struct {
	Objects storage.ObjectStore
	Queue   *queue.ResizeQueue
	Metrics *metrics.Collector

	// VariantWidths are the thumbnail widths rendered per original.
	VariantWidths []int
	// Concurrency is the number of queue consumers.
	Concurrency int
	// UploadConcurrency bounds parallel variant uploads within one job.
	UploadConcurrency int
}

// App consumes resize jobs and writes JPEG variants next to the original.
// Processing is idempotent: rendering is deterministic and uploads overwrite,
// so a redelivered job converges on the same bytes.
type App struct {
	objects           storage.ObjectStore
	queue             *queue.ResizeQueue
	metrics           *metrics.Collector
	variantWidths     []int
	concurrency       int
	uploadConcurrency int
}

// New validates the config and applies defaults.
func New(cfg Config) (*App, error) {
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("resize queue required")
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	widths := append([]int(nil), cfg.VariantWidths...)
	if len(widths) == 0 {
		widths = []int{256, 512, 1024}
	}
	sort.Ints(widths)
	for _, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("invalid variant width %d", w)
		}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	uploadConcurrency := cfg.UploadConcurrency
	if uploadConcurrency <= 0 {
		uploadConcurrency = len(widths)
	}
	return &App{
		objects:           cfg.Objects,
		queue:             cfg.Queue,
		metrics:           collector,
		variantWidths:     widths,
		concurrency:       concurrency,
		uploadConcurrency: uploadConcurrency,
	}, nil
}

// Metrics exposes the collector for the HTTP layer.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// Run starts the queue consumers. It returns immediately; consumers stop
// when ctx is canceled.
func (a *App) Run(ctx context.Context) {
	a.queue.Start(ctx, a.concurrency, a.process)
}

// process handles one resize job. Returning nil acknowledges the message;
// a terminal error dead-letters it; any other error leaves it for retry.
func (a *App) process(ctx context.Context, job queue.JobStatus) error {
	start := time.Now()
	err := a.renderVariants(ctx, job)
	switch {
	case err == nil:
		a.metrics.RecordResizeJob("success", time.Since(start))
	case isTerminal(err):
		a.metrics.RecordResizeJob("terminal", time.Since(start))
	default:
		a.metrics.RecordResizeJob("retry", time.Since(start))
	}
	return err
}

func (a *App) renderVariants(ctx context.Context, job queue.JobStatus) error {
	obj, err := a.objects.Get(ctx, job.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch original %s: %w", job.StorageKey, err)
	}
	data, err := io.ReadAll(obj)
	obj.Close()
	if err != nil {
		return fmt.Errorf("read original %s: %w", job.StorageKey, err)
	}

	src, err := decodeImage(data)
	if err != nil {
		// Corrupt uploads never decode on retry either.
		return queue.Terminal(fmt.Errorf("original %s: %w", job.StorageKey, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.uploadConcurrency)
	for _, width := range a.variantWidths {
		w := width
		g.Go(func() error {
			rendered, err := renderVariant(src, w)
			if err != nil {
				return queue.Terminal(fmt.Errorf("variant w%d of %s: %w", w, job.StorageKey, err))
			}
			key := storage.VariantKey(job.StorageKey, fmt.Sprintf("w%d", w))
			if err := a.objects.Put(gctx, key, bytes.NewReader(rendered), int64(len(rendered)), "image/jpeg"); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	util.LoggerFromContext(ctx).Info("variants rendered",
		"job_id", job.ID, "pet_id", job.PetID, "key", job.StorageKey, "variants", len(a.variantWidths))
	return nil
}

func isTerminal(err error) bool {
	var terminal *queue.TerminalError
	return errors.As(err, &terminal)
}
