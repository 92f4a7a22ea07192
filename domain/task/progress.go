package task

// ProgressReporter receives run progress, typically after each pair and at
// stage transitions inside a pair. Implementations belong to the calling
// surface (CLI spinner, UI callback); the engine only pushes into it.
type ProgressReporter interface {
	// ReportProgress reports the current stage of the run.
	ReportProgress(stage, description string, percentage int)

	// ReportPairDone reports completion of one pair with running totals.
	ReportPairDone(pair SitePair, status PairStatus, pairsDone, pairsTotal int)
}

// NoOpProgressReporter is used when nothing consumes progress.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) ReportProgress(stage, description string, percentage int) {}

func (NoOpProgressReporter) ReportPairDone(pair SitePair, status PairStatus, pairsDone, pairsTotal int) {
}

// NewNoOpProgressReporter creates a no-op progress reporter.
func NewNoOpProgressReporter() ProgressReporter {
	return NoOpProgressReporter{}
}

// ProgressStages defines standard stage names for consistency across
// reporters.
type ProgressStages struct {
	Authentication string
	Enumeration    string
	Reconciliation string
	Permissions    string
	Finalization   string
}

// StandardStages provides consistent stage names.
var StandardStages = ProgressStages{
	Authentication: "Authentication",
	Enumeration:    "Item Enumeration",
	Reconciliation: "Reconciliation",
	Permissions:    "Permission Audit",
	Finalization:   "Finalization",
}
