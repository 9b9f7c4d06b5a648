// Package jobs runs the periodic maintenance tasks: purging abandoned uploads and repairing mod sizes.
package jobs

import (
	"context"
	"errors"
	"time"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/objectstore"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	purgeBatch = 200
	jobTimeout = 10 * time.Minute
)

// Scheduler owns the cron runner and the dependencies of each job.
type Scheduler struct {
	DB         *gorm.DB
	Store      objectstore.Store
	Logger     *logger.Logger
	PendingTTL time.Duration

	cron *cron.Cron
}

// New builds a scheduler. Call Start to register the schedules and begin running.
func New(db *gorm.DB, store objectstore.Store, log *logger.Logger, pendingTTL time.Duration) *Scheduler {
	return &Scheduler{
		DB:         db,
		Store:      store,
		Logger:     log,
		PendingTTL: pendingTTL,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers both jobs with their cron specs and starts the runner.
func (s *Scheduler) Start(cleanupSpec, repairSpec string) error {
	if _, err := s.cron.AddFunc(cleanupSpec, s.run("purge_stale_uploads", func(ctx context.Context) error {
		_, err := s.PurgeStaleUploads(ctx)
		return err
	})); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(repairSpec, s.run("repair_mod_sizes", func(ctx context.Context) error {
		_, err := mods.RecomputeAllModSizes(ctx, s.DB)
		return err
	})); err != nil {
		return err
	}
	s.cron.Start()
	s.Logger.Info(context.Background()).WithFields("cleanup", cleanupSpec, "repair", repairSpec).Logs("Scheduler started")
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.Logger.Warn(ctx).Logs("Scheduler stopped before jobs finished")
	}
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.Logger.Error(ctx).WithFields("job", name, "error", err).Logs("Job failed")
			return
		}
		s.Logger.Debug(ctx).WithFields("job", name, "duration", time.Since(start)).Logs("Job finished")
	}
}

// PurgeStaleUploads removes uploads that were presigned but never finalized within PendingTTL.
// A record is only deleted once its object is gone, so a failed delete is retried next run.
func (s *Scheduler) PurgeStaleUploads(ctx context.Context) (int, error) {
	files, images, err := mods.StalePendingUploads(ctx, s.DB, time.Now().Add(-s.PendingTTL), purgeBatch)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 && len(images) == 0 {
		return 0, nil
	}

	var fileIDs, imageIDs []uuid.UUID
	for _, f := range files {
		if s.deleteObject(ctx, f.StorageKey) {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	for _, img := range images {
		if s.deleteObject(ctx, img.StorageKey) {
			imageIDs = append(imageIDs, img.ID)
		}
	}

	if err := mods.DeleteUploadRecords(ctx, s.DB, fileIDs, imageIDs); err != nil {
		return 0, err
	}
	purged := len(fileIDs) + len(imageIDs)
	s.Logger.Info(ctx).WithFields("files", len(fileIDs), "images", len(imageIDs)).Logs("Purged stale uploads")
	return purged, nil
}

func (s *Scheduler) deleteObject(ctx context.Context, key string) bool {
	err := s.Store.Delete(ctx, key)
	if err == nil || errors.Is(err, objectstore.ErrNotFound) {
		return true
	}
	s.Logger.Warn(ctx).WithFields("key", key, "error", err).Logs("Failed to delete stale object")
	return false
}
