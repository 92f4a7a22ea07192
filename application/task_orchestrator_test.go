package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/spauth"
)

var (
	pairAB = task.SitePair{SourceURL: "https://contoso.sharepoint.com/sites/A", TargetURL: "https://fabrikam.sharepoint.com/sites/A"}
	pairCD = task.SitePair{SourceURL: "https://contoso.sharepoint.com/sites/C", TargetURL: "https://fabrikam.sharepoint.com/sites/C"}
	pairEF = task.SitePair{SourceURL: "https://contoso.sharepoint.com/sites/E", TargetURL: "https://northwind.sharepoint.com/sites/E"}
)

type scriptedWorker struct {
	errs   map[string]error
	onRun  func(pair task.SitePair, run *task.SitePairRun)
	called []string
}

func (w *scriptedWorker) RunPair(ctx context.Context, pair task.SitePair, run *task.SitePairRun) error {
	w.called = append(w.called, pair.String())
	if w.onRun != nil {
		w.onRun(pair, run)
	}
	return w.errs[pair.String()]
}

type memoryStore struct {
	latest  *task.TaskRunResult
	saved   *task.TaskRunResult
	loadErr error
	saveErr error
}

func (s *memoryStore) SaveRunResult(result *task.TaskRunResult) error {
	s.saved = result
	return s.saveErr
}

func (s *memoryStore) LatestRunResult() (*task.TaskRunResult, error) {
	return s.latest, s.loadErr
}

type fixedRetries struct{ n int64 }

func (f fixedRetries) ThrottleRetries() int64 { return f.n }

func TestTaskOrchestrator_AllPairsSucceed(t *testing.T) {
	worker := &scriptedWorker{}
	st := &memoryStore{}
	orch := NewTaskOrchestrator(worker, st, fixedRetries{n: 4}, nil, nil)

	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD}, false)

	require.NoError(t, err)
	assert.Equal(t, task.RunStatusCompleted, result.Status)
	require.Len(t, result.Pairs, 2)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[0].Status)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[1].Status)
	assert.Equal(t, int64(4), result.ThrottleRetries)
	assert.Same(t, result, st.saved)
}

func TestTaskOrchestrator_FailedPairDoesNotStopRun(t *testing.T) {
	worker := &scriptedWorker{errs: map[string]error{pairAB.String(): assert.AnError}}
	orch := NewTaskOrchestrator(worker, &memoryStore{}, nil, nil, nil)

	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD}, false)

	require.NoError(t, err)
	assert.Equal(t, task.RunStatusPartiallyFailed, result.Status)
	require.Len(t, result.Pairs, 2)
	assert.Equal(t, task.PairStatusFailed, result.Pairs[0].Status)
	assert.NotEmpty(t, result.Pairs[0].Error)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[1].Status)
	assert.Equal(t, []string{pairAB.String(), pairCD.String()}, worker.called)
}

func TestTaskOrchestrator_ResumeCarriesForwardSucceededPairs(t *testing.T) {
	previous := task.NewTaskRunResult()
	previous.Pairs = []*task.SitePairRun{
		{Pair: pairAB, Status: task.PairStatusSucceeded, Counts: task.PairCounts{Found: 42}, CompletenessPercent: 100},
		{Pair: pairCD, Status: task.PairStatusFailed, Error: "boom"},
	}

	worker := &scriptedWorker{}
	orch := NewTaskOrchestrator(worker, &memoryStore{latest: previous}, nil, nil, nil)

	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD}, true)

	require.NoError(t, err)
	assert.Equal(t, previous.RunID, result.ResumedFrom)

	// Only the previously failed pair is re-executed.
	assert.Equal(t, []string{pairCD.String()}, worker.called)

	require.Len(t, result.Pairs, 2)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[0].Status)
	assert.Equal(t, 42, result.Pairs[0].Counts.Found)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[1].Status)
	assert.Equal(t, task.RunStatusCompleted, result.Status)
}

func TestTaskOrchestrator_ResumeWithoutPreviousRunExecutesAll(t *testing.T) {
	worker := &scriptedWorker{}
	orch := NewTaskOrchestrator(worker, &memoryStore{}, nil, nil, nil)

	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD}, true)

	require.NoError(t, err)
	assert.Empty(t, result.ResumedFrom)
	assert.Len(t, worker.called, 2)
}

func TestTaskOrchestrator_AuthFailureSkipsWholeDomain(t *testing.T) {
	worker := &scriptedWorker{errs: map[string]error{
		pairAB.String(): &spauth.AuthRequiredError{Domain: "fabrikam.sharepoint.com"},
	}}
	orch := NewTaskOrchestrator(worker, &memoryStore{}, nil, nil, nil)

	// pairCD also targets fabrikam; pairEF targets northwind and must run.
	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD, pairEF}, false)

	require.NoError(t, err)
	require.Len(t, result.Pairs, 3)
	assert.Equal(t, task.PairStatusSkipped, result.Pairs[0].Status)
	assert.Contains(t, result.Pairs[0].Error, "authentication required")
	assert.Equal(t, task.PairStatusSkipped, result.Pairs[1].Status)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[2].Status)

	// The unauthenticated domain is attempted exactly once.
	assert.Equal(t, []string{pairAB.String(), pairEF.String()}, worker.called)
	assert.Equal(t, task.RunStatusPartiallyFailed, result.Status)
}

func TestTaskOrchestrator_CancellationStopsBeforeNextPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	worker := &scriptedWorker{onRun: func(pair task.SitePair, run *task.SitePairRun) {
		if pair.SameAs(pairAB) {
			cancel() // cancelled mid-run; the current pair still completes
		}
	}}
	st := &memoryStore{}
	orch := NewTaskOrchestrator(worker, st, nil, nil, nil)

	result, err := orch.Run(ctx, []task.SitePair{pairAB, pairCD}, false)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, task.RunStatusCancelled, result.Status)
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, task.PairStatusSucceeded, result.Pairs[0].Status)
	assert.Equal(t, []string{pairAB.String()}, worker.called)

	// Partial work is still persisted.
	assert.Same(t, result, st.saved)
}

func TestTaskOrchestrator_ExecutionLogIsOrdered(t *testing.T) {
	worker := &scriptedWorker{errs: map[string]error{pairCD.String(): assert.AnError}}
	orch := NewTaskOrchestrator(worker, &memoryStore{}, nil, nil, nil)

	result, err := orch.Run(context.Background(), []task.SitePair{pairAB, pairCD}, false)

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Log), 4)
	assert.Contains(t, result.Log[0].Message, "started")
	assert.Contains(t, result.Log[0].Message, pairAB.SourceURL)
	assert.Contains(t, result.Log[len(result.Log)-1].Message, "failed")
}
