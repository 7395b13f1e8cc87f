package importer

// executor.go runs one admitted job to a terminal status. Progress is
// checkpointed at fixed intervals and the cooperative cancel flag is
// polled on the same cadence, so a cancelled job stops within one
// checkpoint of the request. The catalog version bumps exactly once per
// job, and only if at least one value was written, including jobs that
// end cancelled or failed partway through.

import (
	"context"
	"time"

	"github.com/lexcat/lexcat/internal/catalog"
	"github.com/lexcat/lexcat/internal/logging"
	"github.com/lexcat/lexcat/internal/store"

	"github.com/google/uuid"
)

// Run executes one queued job. Safe to call for any job id: a job that
// is not queued (already picked up, or force-cancelled while waiting) is
// left alone.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID) {
	logger := logging.WithFields(ctx, "job_id", jobID)

	started, err := s.store.MarkJobRunning(ctx, jobID)
	if err != nil {
		logger.Error("failed to claim job", "error", err)
		return
	}
	if !started {
		logger.Info("job not queued, skipping")
		return
	}

	begin := time.Now()
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("failed to load claimed job", "error", err)
		return
	}

	payload, err := s.store.GetPayload(ctx, jobID)
	if err != nil {
		s.finish(ctx, job, store.JobFailed, store.JobStats{Error: "payload missing"}, 0)
		logger.Error("payload missing", "error", err)
		return
	}

	items := catalog.Parse(job.Format, []byte(payload))
	stats := store.JobStats{Total: len(items)}

	if len(items) == 0 {
		stats.Error = "no items in payload"
		s.finish(ctx, job, store.JobFailed, stats, 0)
		s.jobLog(ctx, jobID, "error", "payload contained no importable items", nil)
		return
	}
	if len(items) > s.cfg.MaxItems {
		stats.Error = "too many items"
		s.finish(ctx, job, store.JobFailed, stats, 0)
		s.jobLog(ctx, jobID, "error", "payload exceeds the item limit", map[string]any{
			"items": len(items), "limit": s.cfg.MaxItems,
		})
		return
	}

	s.jobLog(ctx, jobID, "info", "import started", map[string]any{
		"items": len(items), "scope": string(job.Scope), "format": string(job.Format),
	})

	// Namespace and key ids are cached across the run; a typical payload
	// touches a handful of namespaces and revisits keys per locale.
	nsIDs := make(map[string]int64)
	keyIDs := make(map[[2]string]int64)
	writes := 0

	for i, it := range items {
		if i > 0 && i%s.cfg.CheckpointEvery == 0 {
			if err := s.store.UpdateJobProgress(ctx, jobID, i, len(items)); err != nil {
				logger.Warn("checkpoint failed", "error", err)
			}
			cancelled, err := s.store.IsCancelRequested(ctx, jobID)
			if err != nil {
				logger.Warn("cancel check failed", "error", err)
			}
			if cancelled {
				s.finish(ctx, job, store.JobCancelled, stats, writes)
				s.jobLog(ctx, jobID, "warn", "import cancelled", map[string]any{
					"applied": writes, "total": len(items),
				})
				logger.Info("import cancelled", "applied", writes)
				return
			}
		}

		nsID, ok := nsIDs[it.Namespace]
		if !ok {
			nsID, err = s.store.EnsureNamespace(ctx, it.Namespace)
			if err != nil {
				stats.Error = "namespace write failed"
				s.finish(ctx, job, store.JobFailed, stats, writes)
				logger.Error("namespace write failed", "namespace", it.Namespace, "error", err)
				return
			}
			nsIDs[it.Namespace] = nsID
		}

		kk := [2]string{it.Namespace, it.Key}
		keyID, ok := keyIDs[kk]
		if !ok {
			keyID, err = s.store.EnsureKey(ctx, nsID, it.Key)
			if err != nil {
				stats.Error = "key write failed"
				s.finish(ctx, job, store.JobFailed, stats, writes)
				logger.Error("key write failed", "key", it.Key, "error", err)
				return
			}
			keyIDs[kk] = keyID
		}

		var res *store.UpsertResult
		if job.Scope == catalog.ScopeOrg && job.OrgID != nil {
			res, err = s.store.UpsertOverride(ctx, *job.OrgID, keyID, it.Locale, it.Value)
		} else {
			res, err = s.store.UpsertMessage(ctx, keyID, it.Locale, it.Value)
		}
		if err != nil {
			stats.Error = "value write failed"
			s.finish(ctx, job, store.JobFailed, stats, writes)
			logger.Error("value write failed", "key", it.Key, "locale", it.Locale, "error", err)
			return
		}

		action := store.AuditUpdated
		if res.Created {
			stats.Created++
			action = store.AuditCreated
		} else {
			stats.Updated++
		}
		writes++
		itemsApplied.Inc()

		// Best-effort: a lost audit row never fails the import.
		if err := s.store.AppendAudit(ctx, store.AuditEntry{
			Scope:     job.Scope,
			OrgID:     job.OrgID,
			Namespace: it.Namespace,
			Key:       it.Key,
			Locale:    it.Locale,
			Action:    action,
			OldValue:  res.OldValue,
			NewValue:  it.Value,
			ActorID:   &job.RequestedBy,
			JobID:     &job.ID,
		}); err != nil {
			logger.Warn("audit append failed", "error", err)
		}
	}

	s.finish(ctx, job, store.JobDone, stats, writes)
	s.jobLog(ctx, jobID, "info", "import finished", map[string]any{
		"created": stats.Created, "updated": stats.Updated, "total": stats.Total,
	})
	jobDuration.Observe(time.Since(begin).Seconds())
	logger.Info("import finished",
		"created", stats.Created, "updated", stats.Updated, "duration", time.Since(begin))
}

// finish writes the terminal status and bumps the catalog version when
// the run wrote anything. The bump happens before the status flip so a
// client that observes the terminal job never reads a stale version.
func (s *Service) finish(ctx context.Context, job *store.Job, status store.JobStatus, stats store.JobStats, writes int) {
	logger := logging.WithFields(ctx, "job_id", job.ID)

	if writes > 0 {
		if _, err := s.store.IncrementVersion(ctx, versionScope(job.Scope, job.OrgID)); err != nil {
			logger.Error("version bump failed", "error", err)
		}
	}
	if err := s.store.FinishJob(ctx, job.ID, status, stats); err != nil {
		logger.Error("failed to finish job", "status", status, "error", err)
		return
	}
	jobsFinished.WithLabelValues(string(status)).Inc()
}

// jobLog appends to the per-job log, best-effort.
func (s *Service) jobLog(ctx context.Context, jobID uuid.UUID, level, message string, data map[string]any) {
	if err := s.store.AppendJobLog(ctx, jobID, level, message, data); err != nil {
		logging.FromContext(ctx).Warn("job log append failed", "job_id", jobID, "error", err)
	}
}
