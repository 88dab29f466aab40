// ABOUTME: Interval scheduler for recurring sync runs
// ABOUTME: Wraps every pass in a sync_jobs record with a hard timeout
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/models"
	"github.com/hivematrix/codex/psa"
	"github.com/hivematrix/codex/rmm"
	"github.com/hivematrix/codex/syncer"
)

// Job scripts recorded in the audit trail.
const (
	ScriptSyncPSA            = "sync-psa"
	ScriptSyncRMM            = "sync-rmm"
	ScriptPushAccountNumbers = "push-account-numbers"
	ScriptAssignAccounts     = "assign-account-numbers"
)

// maxJobOutput caps the stored output of a job so a noisy run cannot bloat
// the audit trail.
const maxJobOutput = 64 * 1024

// Scheduler drives recurring syncs for every enabled provider. Each pass is
// recorded as a sync job and bounded by the configured job timeout.
type Scheduler struct {
	db     *sql.DB
	cfg    *config.Config
	syncer *syncer.Syncer
}

// New builds a Scheduler over an open database.
func New(database *sql.DB, cfg *config.Config) *Scheduler {
	return &Scheduler{
		db:     database,
		cfg:    cfg,
		syncer: syncer.New(database, cfg),
	}
}

// Run blocks, firing a sync cycle every SyncInterval until the context is
// cancelled. With RunOnStartup set, the first cycle fires immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interval": s.cfg.SyncInterval,
		"psa":      s.cfg.PSAEnabled,
		"rmm":      s.cfg.RMMEnabled,
	}).Info("scheduler started")

	if s.cfg.RunOnStartup {
		s.runCycle(ctx)
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle runs one scheduled pass for every enabled provider. Provider
// failures are logged, never fatal; the next tick always comes.
func (s *Scheduler) runCycle(ctx context.Context) {
	for _, name := range s.cfg.PSAEnabled {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunPSA(ctx, name, syncer.TicketOptions{}); err != nil {
			log.WithError(err).WithField("provider", name).Error("scheduled PSA sync failed")
		}
	}
	for _, name := range s.cfg.RMMEnabled {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunRMM(ctx, name); err != nil {
			log.WithError(err).WithField("provider", name).Error("scheduled RMM sync failed")
		}
	}
}

// RunPSA runs a full PSA pass (companies, contacts, agents, tickets) for one
// provider under a job record.
func (s *Scheduler) RunPSA(ctx context.Context, providerName string, opts syncer.TicketOptions) (*models.SyncJob, error) {
	p, err := psa.New(providerName, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.RunPSAProvider(ctx, p, opts)
}

// RunPSAProvider is RunPSA with an already-built provider instance.
func (s *Scheduler) RunPSAProvider(ctx context.Context, p psa.Provider, opts syncer.TicketOptions) (*models.SyncJob, error) {
	return s.runJob(ctx, ScriptSyncPSA, p.Name(), "all", func(ctx context.Context) ([]*syncer.Result, error) {
		return s.psaPass(ctx, p, opts)
	})
}

// RunRMM runs an asset pass for one RMM provider under a job record.
func (s *Scheduler) RunRMM(ctx context.Context, providerName string) (*models.SyncJob, error) {
	r, err := rmm.New(providerName, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.RunRMMProvider(ctx, r)
}

// RunRMMProvider is RunRMM with an already-built provider instance.
func (s *Scheduler) RunRMMProvider(ctx context.Context, r rmm.Provider) (*models.SyncJob, error) {
	return s.runJob(ctx, ScriptSyncRMM, r.Name(), "assets", func(ctx context.Context) ([]*syncer.Result, error) {
		if err := r.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authenticating: %w", err)
		}
		result, err := s.syncer.SyncAssets(ctx, r)
		if err != nil {
			return nil, err
		}
		return []*syncer.Result{result}, nil
	})
}

// RunPushAccountNumbers pushes account numbers to RMM sites under a job
// record.
func (s *Scheduler) RunPushAccountNumbers(ctx context.Context, providerName string) (*models.SyncJob, error) {
	r, err := rmm.New(providerName, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.runJob(ctx, ScriptPushAccountNumbers, providerName, "push_account_numbers", func(ctx context.Context) ([]*syncer.Result, error) {
		if err := r.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authenticating: %w", err)
		}
		result, err := s.syncer.PushAccountNumbers(ctx, r)
		if err != nil {
			return nil, err
		}
		return []*syncer.Result{result}, nil
	})
}

// RunAssignAccountNumbers assigns missing account numbers in the PSA under a
// job record.
func (s *Scheduler) RunAssignAccountNumbers(ctx context.Context, providerName string) (*models.SyncJob, error) {
	p, err := psa.New(providerName, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.runJob(ctx, ScriptAssignAccounts, providerName, "account_numbers", func(ctx context.Context) ([]*syncer.Result, error) {
		result, err := s.syncer.AssignAccountNumbers(ctx, p)
		if err != nil {
			return nil, err
		}
		return []*syncer.Result{result}, nil
	})
}

// psaPass runs every PSA entity sync in dependency order. Companies come
// first so contact links and ticket attribution resolve against fresh rows.
// One entity type failing does not stop the others; the pass reports every
// failure at the end.
func (s *Scheduler) psaPass(ctx context.Context, p psa.Provider, opts syncer.TicketOptions) ([]*syncer.Result, error) {
	if err := p.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	steps := []struct {
		entity string
		run    func(context.Context) (*syncer.Result, error)
	}{
		{"companies", func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncCompanies(ctx, p) }},
		{"contacts", func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncContacts(ctx, p) }},
		{"agents", func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncAgents(ctx, p) }},
		{"tickets", func(ctx context.Context) (*syncer.Result, error) { return s.syncer.SyncTickets(ctx, p, opts) }},
	}

	var results []*syncer.Result
	var errs []error
	for _, step := range steps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, err := step.run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.entity, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// runJob wraps a pass in a sync job record and the configured hard timeout.
func (s *Scheduler) runJob(ctx context.Context, script, provider, syncType string, fn func(ctx context.Context) ([]*syncer.Result, error)) (*models.SyncJob, error) {
	job, err := db.CreateSyncJob(s.db, script, provider, syncType)
	if err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"job": job.ID, "script": script, "provider": provider})
	logger.Info("job started")

	timeout := s.cfg.JobTimeout
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, runErr := fn(runCtx)
	output := renderOutput(results, runErr)

	status := models.JobStatusCompleted
	if runErr != nil {
		status = models.JobStatusFailed
	}
	if err := db.CompleteSyncJob(s.db, job.ID, status, output); err != nil {
		logger.WithError(err).Error("failed to record job completion")
	}

	if runErr != nil {
		logger.WithError(runErr).Error("job failed")
		return job, runErr
	}
	logger.Info("job completed")
	return job, nil
}

// renderOutput joins result summaries into the stored job output, capped at
// maxJobOutput.
func renderOutput(results []*syncer.Result, runErr error) string {
	var lines []string
	for _, r := range results {
		lines = append(lines, r.Summary())
		for _, e := range r.Errors {
			lines = append(lines, "  error: "+e)
		}
	}
	if runErr != nil {
		lines = append(lines, "failed: "+runErr.Error())
	}

	output := strings.Join(lines, "\n")
	if len(output) > maxJobOutput {
		output = output[:maxJobOutput]
	}
	return output
}
