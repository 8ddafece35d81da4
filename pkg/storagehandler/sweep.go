package storagehandler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/basestub/basestub/pkg/observability"
	"github.com/basestub/basestub/pkg/storageblob"
)

// Reconcile walks every object row and deletes the ones whose blob is
// missing from the backend — rows stranded by an upload whose blob
// write failed, or by a crash between the two writes. It returns how
// many rows were removed.
func (h *Handler) Reconcile(ctx context.Context) (int, error) {
	rows, _, err := h.engine.Query(ctx, `SELECT id, bucket_id, name FROM storage_objects`)
	if err != nil {
		return 0, fmt.Errorf("storage: reconcile query: %w", err)
	}

	var removed int
	for _, row := range rows {
		key := asString(row["bucket_id"]) + "/" + asString(row["name"])
		exists, err := h.blobs.Exists(ctx, key)
		if err != nil {
			return removed, fmt.Errorf("storage: reconcile check %s: %w", key, err)
		}
		if exists {
			continue
		}
		if _, err := h.engine.Exec(ctx, `DELETE FROM storage_objects WHERE id = ?`, asString(row["id"])); err != nil {
			return removed, fmt.Errorf("storage: reconcile delete: %w", err)
		}
		removed++
	}
	return removed, nil
}

// SweepOrphans removes blobs that no object row describes — leftovers
// from a move whose final source delete failed. Only backends that can
// enumerate their keys participate; others are skipped.
func (h *Handler) SweepOrphans(ctx context.Context) (int, error) {
	mem, ok := h.blobs.(*storageblob.MemoryBackend)
	if !ok {
		return 0, nil
	}

	rows, _, err := h.engine.Query(ctx, `SELECT bucket_id, name FROM storage_objects`)
	if err != nil {
		return 0, fmt.Errorf("storage: sweep query: %w", err)
	}
	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[asString(row["bucket_id"])+"/"+asString(row["name"])] = true
	}

	var removed int
	for _, key := range mem.Keys() {
		if known[key] {
			continue
		}
		if _, err := h.blobs.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("storage: sweep delete %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// Sweeper schedules Reconcile and SweepOrphans on a cron cadence, the
// same shape as pkg/auth's refresh-token cleanup.
type Sweeper struct {
	handler *Handler
	cron    *cron.Cron
	logger  *observability.Logger
}

// NewSweeper builds a stopped Sweeper; call Start to begin.
func NewSweeper(handler *Handler, logger *observability.Logger) *Sweeper {
	return &Sweeper{handler: handler, cron: cron.New(), logger: logger}
}

// Start registers the sweep on the given cron spec and starts the
// scheduler.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil && s.logger != nil {
				s.logger.WithField("panic", r).Error("storage sweep panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		rows, err := s.handler.Reconcile(ctx)
		if err != nil && s.logger != nil {
			s.logger.WithError(err).Error("storage reconcile failed")
		}
		blobs, err := s.handler.SweepOrphans(ctx)
		if err != nil && s.logger != nil {
			s.logger.WithError(err).Error("storage orphan sweep failed")
		}
		if s.logger != nil && (rows > 0 || blobs > 0) {
			s.logger.WithFields(map[string]interface{}{"rows": rows, "blobs": blobs}).
				Info("storage sweep reconciled")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for an in-flight sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
