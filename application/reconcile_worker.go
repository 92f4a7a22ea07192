package application

import (
	"context"
	"fmt"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/recon"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spcollect"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// PairWorker executes one site pair and fills its run record.
type PairWorker interface {
	RunPair(ctx context.Context, pair task.SitePair, run *task.SitePairRun) error
}

// ReconcileWorker is the production PairWorker: per pair it authenticates
// both sides, enumerates the libraries, diffs source against target, and
// optionally audits source permissions.
type ReconcileWorker struct {
	sessions SessionFactory
	params   *task.TaskParameters
	progress task.ProgressReporter
	logger   *logging.Logger
}

// NewReconcileWorker creates a worker.
func NewReconcileWorker(sessions SessionFactory, params *task.TaskParameters, progress task.ProgressReporter, logger *logging.Logger) *ReconcileWorker {
	if params == nil {
		params = task.DefaultParameters()
	}
	if progress == nil {
		progress = task.NewNoOpProgressReporter()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReconcileWorker{
		sessions: sessions,
		params:   params,
		progress: progress,
		logger:   logger.WithComponent("reconcile_worker"),
	}
}

// RunPair reconciles one pair. Counts accumulate across libraries; the
// pair-level completeness is recomputed from the accumulated totals so a
// half-empty library cannot hide behind a complete one.
func (w *ReconcileWorker) RunPair(ctx context.Context, pair task.SitePair, run *task.SitePairRun) error {
	w.progress.ReportProgress(task.StandardStages.Authentication, pair.String(), 0)

	source, err := w.sessions.SessionFor(ctx, pair.SourceURL)
	if err != nil {
		return err
	}
	target, err := w.sessions.SessionFor(ctx, pair.TargetURL)
	if err != nil {
		return err
	}

	libraries, err := w.resolveLibraries(ctx, source, pair)
	if err != nil {
		return err
	}

	for _, library := range libraries {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.progress.ReportProgress(task.StandardStages.Enumeration, fmt.Sprintf("%s [%s]", pair, library), 0)

		report, err := w.reconcileLibrary(ctx, source, target, pair, library)
		if err != nil {
			return fmt.Errorf("library %q: %w", library, err)
		}

		run.Counts.Found += report.Found
		run.Counts.SizeIssues += report.SizeIssues
		run.Counts.SourceOnly += report.SourceOnly
		run.Counts.TargetOnly += report.TargetOnly
		run.LibrariesProcessed = append(run.LibrariesProcessed, library)

		w.logger.Info("Library reconciled",
			"pair", pair.String(),
			"library", library,
			"found", report.Found,
			"size_issues", report.SizeIssues,
			"source_only", report.SourceOnly,
			"target_only", report.TargetOnly,
			"completeness", report.CompletenessPercent)
	}

	run.CompletenessPercent = completeness(run.Counts)

	if w.params.AuditSitePermissions || w.params.AuditListPermissions || w.params.AuditItemPermissions {
		w.progress.ReportProgress(task.StandardStages.Permissions, pair.String(), 0)
		w.auditPermissions(ctx, source, run)
	}

	return nil
}

func (w *ReconcileWorker) resolveLibraries(ctx context.Context, source *Session, pair task.SitePair) ([]string, error) {
	if pair.Library != "" {
		return []string{pair.Library}, nil
	}
	lists, err := source.Client.GetDocumentLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover source libraries: %w", err)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("source site has no document libraries")
	}
	titles := make([]string, 0, len(lists))
	for _, list := range lists {
		titles = append(titles, list.Title)
	}
	return titles, nil
}

func (w *ReconcileWorker) reconcileLibrary(ctx context.Context, source, target *Session, pair task.SitePair, library string) (*recon.DiffReport, error) {
	sourceItems, err := collectItems(ctx, source.Fetcher, library, w.params.PageSize)
	if err != nil {
		return nil, fmt.Errorf("enumerate source: %w", err)
	}
	targetItems, err := collectItems(ctx, target.Fetcher, library, w.params.PageSize)
	if err != nil {
		return nil, fmt.Errorf("enumerate target: %w", err)
	}

	w.progress.ReportProgress(task.StandardStages.Reconciliation, fmt.Sprintf("%s [%s]", pair, library), 0)

	sourceKeys := recon.KeyContext{SiteURL: pair.SourceURL, LibraryTitle: library}
	targetKeys := recon.KeyContext{SiteURL: pair.TargetURL, LibraryTitle: library}

	return recon.Diff(sourceItems, targetItems, sourceKeys, targetKeys, w.params.SizeThreshold), nil
}

// auditPermissions runs the scoped permission collection on the source site.
// Audit failures degrade the pair, they do not fail it: reconciliation
// results are still worth keeping.
func (w *ReconcileWorker) auditPermissions(ctx context.Context, source *Session, run *task.SitePairRun) {
	collector := spcollect.NewCollector(source.Client, source.Fetcher, source.Checker, w.logger)
	assignments, err := collector.Collect(ctx, spcollect.Scope{
		Site:             w.params.AuditSitePermissions,
		Lists:            w.params.AuditListPermissions,
		Items:            w.params.AuditItemPermissions,
		IncludeInherited: w.params.IncludeInherited,
		PageSize:         w.params.PageSize,
		CheckBatchSize:   w.params.CheckBatchSize,
	})
	if err != nil {
		w.logger.Warn("Permission audit incomplete", "pair_source", run.Pair.SourceURL, "error", err.Error())
	}
	run.Counts.AssignmentsFound = len(assignments)
}

func collectItems(ctx context.Context, fetcher spcollect.ItemEnumerator, library string, pageSize int) ([]recon.RemoteItem, error) {
	var items []recon.RemoteItem
	_, err := fetcher.EnumerateItems(ctx, library, pageSize, func(item recon.RemoteItem) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// completeness is the percentage of source items found on the target. Only a
// pair with no source items at all is vacuously complete; a pair whose every
// match is a size issue scores 0.
func completeness(counts task.PairCounts) float64 {
	if counts.Found+counts.SizeIssues+counts.SourceOnly == 0 {
		return 100
	}
	denominator := counts.Found + counts.SourceOnly
	if denominator == 0 {
		return 0
	}
	return float64(counts.Found) / float64(denominator) * 100
}
