package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/store"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/spauth"
)

// nowFunc is swapped out by tests needing deterministic timestamps.
var nowFunc = time.Now

// RunResultStore persists and recalls task run results.
type RunResultStore interface {
	SaveRunResult(result *task.TaskRunResult) error
	LatestRunResult() (*task.TaskRunResult, error)
}

// retrySource is implemented by workers or factories that can report their
// accumulated throttle waits.
type retrySource interface {
	ThrottleRetries() int64
}

// TaskOrchestrator drives a run: pairs execute sequentially in input order,
// one pair's failure never stops the next, and the finished result is
// persisted for resume.
type TaskOrchestrator struct {
	worker   PairWorker
	store    RunResultStore
	retries  retrySource
	progress task.ProgressReporter
	logger   *logging.Logger
}

// NewTaskOrchestrator creates an orchestrator. retries may be nil when no
// component tracks throttling.
func NewTaskOrchestrator(worker PairWorker, resultStore RunResultStore, retries retrySource, progress task.ProgressReporter, logger *logging.Logger) *TaskOrchestrator {
	if progress == nil {
		progress = task.NewNoOpProgressReporter()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TaskOrchestrator{
		worker:   worker,
		store:    resultStore,
		retries:  retries,
		progress: progress,
		logger:   logger.WithComponent("task_orchestrator"),
	}
}

// Run processes the pairs in order. With resume enabled, pairs that
// succeeded in the most recent stored run are carried forward instead of
// re-executed. Cancellation stops before the next pair starts and finalizes
// the run as cancelled, keeping everything done so far.
func (o *TaskOrchestrator) Run(ctx context.Context, pairs []task.SitePair, resume bool) (*task.TaskRunResult, error) {
	result := task.NewTaskRunResult()
	o.logger.Task("Run started", result.RunID, "pairs", len(pairs), "resume", resume)

	var previous *task.TaskRunResult
	if resume {
		var err error
		previous, err = o.store.LatestRunResult()
		if err != nil {
			o.logger.TaskError("Could not load previous run, resuming nothing", err, result.RunID)
		} else if previous != nil {
			result.ResumedFrom = previous.RunID
			result.AppendLog("resuming from run %s", previous.RunID)
		}
	}

	// Domains that already failed authentication; every later pair touching
	// one is skipped without another attempt.
	authFailed := make(map[string]string)

	cancelled := false
	for i, pair := range pairs {
		if ctx.Err() != nil {
			cancelled = true
			result.AppendLog("cancelled before pair %s", pair)
			break
		}

		if prior, ok := previous.SucceededRunFor(pair); ok {
			copied := *prior
			result.Pairs = append(result.Pairs, &copied)
			result.AppendLog("pair %s: carried forward from run %s", pair, previous.RunID)
			o.progress.ReportPairDone(pair, copied.Status, i+1, len(pairs))
			continue
		}

		if domain, ok := o.authFailedDomain(pair, authFailed); ok {
			run := &task.SitePairRun{Pair: pair, Status: task.PairStatusRunning}
			run.MarkSkipped(authFailed[domain])
			result.Pairs = append(result.Pairs, run)
			result.AppendLog("pair %s: skipped, %s", pair, authFailed[domain])
			o.progress.ReportPairDone(pair, run.Status, i+1, len(pairs))
			continue
		}

		run := o.executePair(ctx, pair, result, authFailed)
		result.Pairs = append(result.Pairs, run)
		o.progress.ReportPairDone(pair, run.Status, i+1, len(pairs))

		if run.Status == task.PairStatusFailed && ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	o.progress.ReportProgress(task.StandardStages.Finalization, "saving run result", 100)
	if o.retries != nil {
		result.ThrottleRetries = o.retries.ThrottleRetries()
	}
	result.Finalize(cancelled)

	if err := o.store.SaveRunResult(result); err != nil {
		o.logger.TaskError("Failed to persist run result", err, result.RunID)
	}

	o.logger.Task("Run finished", result.RunID,
		"status", string(result.Status),
		"pairs", len(result.Pairs),
		"throttle_retries", result.ThrottleRetries)

	if cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

func (o *TaskOrchestrator) executePair(ctx context.Context, pair task.SitePair, result *task.TaskRunResult, authFailed map[string]string) *task.SitePairRun {
	run := &task.SitePairRun{Pair: pair, Status: task.PairStatusRunning, StartedAt: nowFunc()}
	result.AppendLog("pair %s: started", pair)

	err := o.worker.RunPair(ctx, pair, run)
	switch {
	case err == nil:
		run.MarkSucceeded()
		result.AppendLog("pair %s: succeeded, completeness %.1f%%", pair, run.CompletenessPercent)

	case isAuthRequired(err):
		var authErr *spauth.AuthRequiredError
		errors.As(err, &authErr)
		reason := "authentication required for domain " + authErr.Domain
		authFailed[authErr.Domain] = reason
		run.MarkSkipped(reason)
		result.AppendLog("pair %s: skipped, %s", pair, reason)
		o.logger.Warn("Skipping domain until credentials are registered", "domain", authErr.Domain)

	default:
		run.MarkFailed(err)
		result.AppendLog("pair %s: failed, %v", pair, err)
		o.logger.TaskError("Pair failed", err, result.RunID, "pair", pair.String())
	}

	return run
}

// authFailedDomain reports whether either side of the pair belongs to a
// domain that already failed authentication this run.
func (o *TaskOrchestrator) authFailedDomain(pair task.SitePair, authFailed map[string]string) (string, bool) {
	for _, siteURL := range []string{pair.SourceURL, pair.TargetURL} {
		domain, err := store.DomainOf(siteURL)
		if err != nil {
			continue
		}
		if _, ok := authFailed[domain]; ok {
			return domain, true
		}
	}
	return "", false
}

func isAuthRequired(err error) bool {
	var authErr *spauth.AuthRequiredError
	return errors.As(err, &authErr)
}
