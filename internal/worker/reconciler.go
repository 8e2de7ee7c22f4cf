// Package worker implements the Reconciliation Worker (§4.15): a
// periodic sweep that deletes cached tarballs with no corresponding
// verified Package record, plus the ticker that keeps the reconcile
// queue fed. There is exactly one kind of task and exactly one
// in-process consumer, so there is no concurrency knob or scheduler —
// just a ticker goroutine and a processing goroutine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/registry"
)

// DefaultInterval is how often a reconcile_cache task is enqueued.
const DefaultInterval = time.Hour

// dequeueTimeout bounds how long the processing loop blocks waiting for
// a task before checking for a stop signal.
const dequeueTimeout = 5 * time.Second

// Reconciler periodically scans the on-disk cache for tarballs lacking
// a verified Package record and deletes them.
type Reconciler struct {
	queue    driven.TaskQueue
	files    driven.FileCache
	packages driven.PackageStore
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(queue driven.TaskQueue, files driven.FileCache, packages driven.PackageStore, logger *slog.Logger, interval time.Duration) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{queue: queue, files: files, packages: packages, logger: logger, interval: interval}
}

// Start launches the ticker goroutine and the processing goroutine. It
// returns immediately; call Stop to shut both down.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.tickLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.processLoop(ctx)
	}()

	go func() {
		wg.Wait()
		close(r.doneCh)
	}()
}

// Stop signals both loops to exit and waits for them to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Reconciler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.enqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.enqueue(ctx)
		}
	}
}

func (r *Reconciler) enqueue(ctx context.Context) {
	task := domain.Task{Kind: domain.ReconcileCache, EnqueuedAt: time.Now().UTC()}
	if err := r.queue.Enqueue(ctx, task); err != nil {
		r.logger.Error("reconcile: enqueue failed", "error", err)
	}
}

func (r *Reconciler) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		task, err := r.queue.DequeueWithTimeout(ctx, dequeueTimeout)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				continue
			}
			r.logger.Error("reconcile: dequeue failed", "error", err)
			continue
		}
		if task == nil {
			continue
		}

		if err := r.runScan(ctx); err != nil {
			r.logger.Error("reconcile: scan failed", "task_id", task.ID, "error", err)
			if nackErr := r.queue.Nack(ctx, task.ID, err); nackErr != nil {
				r.logger.Error("reconcile: nack failed", "error", nackErr)
			}
			continue
		}
		if err := r.queue.Ack(ctx, task.ID); err != nil {
			r.logger.Error("reconcile: ack failed", "error", err)
		}
	}
}

// runScan implements the §4.15 sweep: any tarball filename whose parsed
// package name/version has no Package record with Verified=true is
// orphaned and is deleted.
func (r *Reconciler) runScan(ctx context.Context) error {
	filenames, err := r.files.ListTarballFilenames()
	if err != nil {
		return fmt.Errorf("worker: list tarballs: %w", err)
	}

	var reclaimed int
	for _, filename := range filenames {
		name, version, ok := registry.ParseTarballFilename(filename)
		if !ok {
			continue
		}

		pkg, err := r.packages.Get(ctx, name, version)
		if err == nil && pkg.Verified {
			continue
		}

		if err := r.files.DeleteTarball(filename); err != nil {
			r.logger.Warn("reconcile: delete orphaned tarball failed", "filename", filename, "error", err)
			continue
		}
		reclaimed++
	}

	r.logger.Info("reconcile: scan complete", "scanned", len(filenames), "reclaimed", reclaimed)
	return nil
}
