package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/recon"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/sharepoint"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spclient"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/spauth"
)

type stubClient struct {
	web       *sharepoint.Web
	libraries []*sharepoint.List
	grants    []spclient.RoleGrant
}

func (c *stubClient) GetWeb(ctx context.Context) (*sharepoint.Web, error) {
	return c.web, nil
}

func (c *stubClient) GetDocumentLibraries(ctx context.Context) ([]*sharepoint.List, error) {
	return c.libraries, nil
}

func (c *stubClient) HasUniquePermissions(ctx context.Context, target spclient.PermissionTarget) (bool, error) {
	return true, nil
}

func (c *stubClient) GetRoleAssignments(ctx context.Context, target spclient.PermissionTarget) ([]spclient.RoleGrant, error) {
	return c.grants, nil
}

type stubEnumerator struct {
	byLibrary map[string][]recon.RemoteItem
	errs      map[string]error
}

func (e *stubEnumerator) EnumerateItems(ctx context.Context, library string, pageSize int, fn func(recon.RemoteItem) error) (int, error) {
	if err := e.errs[library]; err != nil {
		return 0, err
	}
	for _, item := range e.byLibrary[library] {
		if err := fn(item); err != nil {
			return 0, err
		}
	}
	return len(e.byLibrary[library]), nil
}

type stubChecker struct{}

func (stubChecker) CheckUniquePermissions(ctx context.Context, listID string, itemIDs []int) (map[int]struct{}, error) {
	return nil, nil
}

type stubFactory struct {
	sessions map[string]*Session
}

func (f *stubFactory) SessionFor(ctx context.Context, siteURL string) (*Session, error) {
	if session, ok := f.sessions[siteURL]; ok {
		return session, nil
	}
	return nil, &spauth.AuthRequiredError{Domain: siteURL}
}

type recordingProgress struct {
	stages []string
}

func (r *recordingProgress) ReportProgress(stage, description string, percentage int) {
	r.stages = append(r.stages, stage)
}

func (r *recordingProgress) ReportPairDone(pair task.SitePair, status task.PairStatus, pairsDone, pairsTotal int) {
}

func srcItem(id int, name string, size int64) recon.RemoteItem {
	return recon.RemoteItem{ID: id, Name: name, Path: "/sites/src/Shared Documents/" + name, Size: size, Type: recon.ItemTypeFile}
}

func tgtItem(id int, name string, size int64) recon.RemoteItem {
	return recon.RemoteItem{ID: id, Name: name, Path: "/sites/tgt/Shared Documents/" + name, Size: size, Type: recon.ItemTypeFile}
}

func noAuditParams() *task.TaskParameters {
	params := task.DefaultParameters()
	params.AuditSitePermissions = false
	params.AuditListPermissions = false
	return params
}

func newWorkerFixture(params *task.TaskParameters, sourceItems, targetItems map[string][]recon.RemoteItem, libs []*sharepoint.List) (*ReconcileWorker, task.SitePair) {
	pair := task.SitePair{
		SourceURL: "https://contoso.sharepoint.com/sites/src",
		TargetURL: "https://fabrikam.sharepoint.com/sites/tgt",
	}
	sourceWeb := &sharepoint.Web{URL: pair.SourceURL, Title: "Source", HasUnique: true}
	factory := &stubFactory{sessions: map[string]*Session{
		pair.SourceURL: {
			Client:  &stubClient{web: sourceWeb, libraries: libs, grants: []spclient.RoleGrant{{Principal: sharepoint.Principal{ID: 1, Title: "Owners"}, Roles: []string{"Full Control"}}}},
			Fetcher: &stubEnumerator{byLibrary: sourceItems},
			Checker: stubChecker{},
		},
		pair.TargetURL: {
			Client:  &stubClient{web: &sharepoint.Web{URL: pair.TargetURL, Title: "Target"}},
			Fetcher: &stubEnumerator{byLibrary: targetItems},
			Checker: stubChecker{},
		},
	}}
	return NewReconcileWorker(factory, params, nil, nil), pair
}

func TestReconcileWorker_SingleLibraryCounts(t *testing.T) {
	sourceItems := map[string][]recon.RemoteItem{"Documents": {
		srcItem(1, "a.txt", 300),
		srcItem(2, "b.txt", 400),
		srcItem(3, "c.txt", 500),
	}}
	targetItems := map[string][]recon.RemoteItem{"Documents": {
		tgtItem(11, "a.txt", 300),
		tgtItem(12, "b.txt", 50), // below half of source size
	}}

	params := noAuditParams()
	worker, pair := newWorkerFixture(params, sourceItems, targetItems, nil)
	pair.Library = "Documents"

	run := &task.SitePairRun{Pair: pair}
	err := worker.RunPair(context.Background(), pair, run)

	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Found)
	assert.Equal(t, 1, run.Counts.SizeIssues)
	assert.Equal(t, 1, run.Counts.SourceOnly)
	assert.Equal(t, 0, run.Counts.TargetOnly)
	assert.InDelta(t, 50.0, run.CompletenessPercent, 0.01)
	assert.Equal(t, []string{"Documents"}, run.LibrariesProcessed)
	assert.Zero(t, run.Counts.AssignmentsFound)
}

func TestReconcileWorker_AllSizeIssuesScoreZeroCompleteness(t *testing.T) {
	// Every file arrived truncated: nothing usable reached the target, so the
	// pair must not report as complete.
	sourceItems := map[string][]recon.RemoteItem{"Documents": {
		srcItem(1, "a.txt", 1000),
		srcItem(2, "b.txt", 2000),
	}}
	targetItems := map[string][]recon.RemoteItem{"Documents": {
		tgtItem(11, "a.txt", 10),
		tgtItem(12, "b.txt", 0),
	}}

	worker, pair := newWorkerFixture(noAuditParams(), sourceItems, targetItems, nil)
	pair.Library = "Documents"

	run := &task.SitePairRun{Pair: pair}
	err := worker.RunPair(context.Background(), pair, run)

	require.NoError(t, err)
	assert.Equal(t, 0, run.Counts.Found)
	assert.Equal(t, 2, run.Counts.SizeIssues)
	assert.Equal(t, 0, run.Counts.SourceOnly)
	assert.InDelta(t, 0.0, run.CompletenessPercent, 0.01)
}

func TestReconcileWorker_DiscoversLibrariesWhenUnspecified(t *testing.T) {
	libs := []*sharepoint.List{
		{ID: "l1", Title: "Documents", BaseTemplate: sharepoint.DocumentLibraryTemplate},
		{ID: "l2", Title: "Archive", BaseTemplate: sharepoint.DocumentLibraryTemplate},
	}
	sourceItems := map[string][]recon.RemoteItem{
		"Documents": {srcItem(1, "a.txt", 10)},
		"Archive":   {srcItem(2, "z.txt", 10)},
	}
	targetItems := map[string][]recon.RemoteItem{
		"Documents": {tgtItem(11, "a.txt", 10)},
		"Archive":   {},
	}

	worker, pair := newWorkerFixture(noAuditParams(), sourceItems, targetItems, libs)

	run := &task.SitePairRun{Pair: pair}
	err := worker.RunPair(context.Background(), pair, run)

	require.NoError(t, err)
	assert.Equal(t, []string{"Documents", "Archive"}, run.LibrariesProcessed)
	assert.Equal(t, 1, run.Counts.Found)
	assert.Equal(t, 1, run.Counts.SourceOnly)
	assert.InDelta(t, 50.0, run.CompletenessPercent, 0.01)
}

func TestReconcileWorker_AuthErrorPropagates(t *testing.T) {
	worker := NewReconcileWorker(&stubFactory{sessions: map[string]*Session{}}, noAuditParams(), nil, nil)
	pair := task.SitePair{SourceURL: "https://nowhere.sharepoint.com/sites/x", TargetURL: "https://nowhere.sharepoint.com/sites/y"}

	err := worker.RunPair(context.Background(), pair, &task.SitePairRun{Pair: pair})

	var authErr *spauth.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
}

func TestReconcileWorker_TargetEnumerationFailureFailsPair(t *testing.T) {
	pair := task.SitePair{
		SourceURL: "https://contoso.sharepoint.com/sites/src",
		TargetURL: "https://fabrikam.sharepoint.com/sites/tgt",
		Library:   "Documents",
	}
	factory := &stubFactory{sessions: map[string]*Session{
		pair.SourceURL: {
			Client:  &stubClient{web: &sharepoint.Web{URL: pair.SourceURL}},
			Fetcher: &stubEnumerator{byLibrary: map[string][]recon.RemoteItem{"Documents": {srcItem(1, "a.txt", 1)}}},
			Checker: stubChecker{},
		},
		pair.TargetURL: {
			Client:  &stubClient{web: &sharepoint.Web{URL: pair.TargetURL}},
			Fetcher: &stubEnumerator{errs: map[string]error{"Documents": assert.AnError}},
			Checker: stubChecker{},
		},
	}}
	worker := NewReconcileWorker(factory, noAuditParams(), nil, nil)

	err := worker.RunPair(context.Background(), pair, &task.SitePairRun{Pair: pair})

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "enumerate target")
}

func TestReconcileWorker_ReportsStagesInOrder(t *testing.T) {
	sourceItems := map[string][]recon.RemoteItem{"Documents": {srcItem(1, "a.txt", 10)}}
	targetItems := map[string][]recon.RemoteItem{"Documents": {tgtItem(11, "a.txt", 10)}}

	worker, pair := newWorkerFixture(noAuditParams(), sourceItems, targetItems, nil)
	pair.Library = "Documents"

	progress := &recordingProgress{}
	worker.progress = progress

	err := worker.RunPair(context.Background(), pair, &task.SitePairRun{Pair: pair})

	require.NoError(t, err)
	assert.Equal(t, []string{
		task.StandardStages.Authentication,
		task.StandardStages.Enumeration,
		task.StandardStages.Reconciliation,
	}, progress.stages)
}

func TestReconcileWorker_PermissionAuditRecordsAssignments(t *testing.T) {
	sourceItems := map[string][]recon.RemoteItem{"Documents": {srcItem(1, "a.txt", 10)}}
	targetItems := map[string][]recon.RemoteItem{"Documents": {tgtItem(11, "a.txt", 10)}}

	params := task.DefaultParameters() // site and list audit enabled by default
	params.AuditListPermissions = false

	worker, pair := newWorkerFixture(params, sourceItems, targetItems, nil)
	pair.Library = "Documents"

	run := &task.SitePairRun{Pair: pair}
	err := worker.RunPair(context.Background(), pair, run)

	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.AssignmentsFound)
}
