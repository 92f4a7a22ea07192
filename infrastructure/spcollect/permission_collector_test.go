package spcollect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/recon"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/sharepoint"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spclient"
)

type mockSiteAPI struct {
	mock.Mock
}

func (m *mockSiteAPI) GetWeb(ctx context.Context) (*sharepoint.Web, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.Web), args.Error(1)
}

func (m *mockSiteAPI) GetDocumentLibraries(ctx context.Context) ([]*sharepoint.List, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.List), args.Error(1)
}

func (m *mockSiteAPI) HasUniquePermissions(ctx context.Context, target spclient.PermissionTarget) (bool, error) {
	args := m.Called(ctx, target)
	return args.Bool(0), args.Error(1)
}

func (m *mockSiteAPI) GetRoleAssignments(ctx context.Context, target spclient.PermissionTarget) ([]spclient.RoleGrant, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]spclient.RoleGrant), args.Error(1)
}

type fakeEnumerator struct {
	items []recon.RemoteItem
	err   error
}

func (f *fakeEnumerator) EnumerateItems(ctx context.Context, library string, pageSize int, fn func(recon.RemoteItem) error) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for _, item := range f.items {
		if err := fn(item); err != nil {
			return 0, err
		}
	}
	return len(f.items), nil
}

type fakeChecker struct {
	unique map[int]struct{}
	err    error

	gotListID string
	gotIDs    []int
}

func (f *fakeChecker) CheckUniquePermissions(ctx context.Context, listID string, itemIDs []int) (map[int]struct{}, error) {
	f.gotListID = listID
	f.gotIDs = itemIDs
	return f.unique, f.err
}

var testWeb = &sharepoint.Web{
	ID:        "web-1",
	URL:       "https://contoso.sharepoint.com/sites/src",
	Title:     "Source",
	HasUnique: true,
}

func ownerGrant() []spclient.RoleGrant {
	return []spclient.RoleGrant{
		{
			Principal: sharepoint.Principal{ID: 5, Title: "Owners", PrincipalType: sharepoint.PrincipalTypeSharePointGroup},
			Roles:     []string{"Full Control", sharepoint.BaselineReadRole},
		},
		{
			// Limited Access only; must be dropped entirely.
			Principal: sharepoint.Principal{ID: 6, Title: "Lurkers", PrincipalType: sharepoint.PrincipalTypeSharePointGroup},
			Roles:     []string{sharepoint.BaselineReadRole},
		},
	}
}

func TestCollector_SiteScopeFiltersBaselineRole(t *testing.T) {
	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(testWeb, nil)
	client.On("GetRoleAssignments", mock.Anything, spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindSite}).
		Return(ownerGrant(), nil)

	collector := NewCollector(client, &fakeEnumerator{}, &fakeChecker{}, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Site: true})

	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Owners", assignments[0].Principal.Title)
	assert.Equal(t, []string{"Full Control"}, assignments[0].Roles)
	assert.False(t, assignments[0].Inherited)
	client.AssertExpectations(t)
}

func TestCollector_InheritedSiteAnchoredToParentWeb(t *testing.T) {
	subWeb := &sharepoint.Web{
		ID:        "web-2",
		URL:       "https://contoso.sharepoint.com/sites/src/sub",
		Title:     "Subsite",
		HasUnique: false,
	}

	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(subWeb, nil)
	client.On("GetRoleAssignments", mock.Anything, spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindSite}).
		Return(ownerGrant(), nil)

	collector := NewCollector(client, &fakeEnumerator{}, &fakeChecker{}, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Site: true, IncludeInherited: true})

	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.True(t, assignments[0].Inherited)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/src", assignments[0].InheritedFrom)
}

func TestParentWebURL(t *testing.T) {
	tests := []struct {
		webURL string
		parent string
	}{
		{"https://contoso.sharepoint.com/sites/src/sub", "https://contoso.sharepoint.com/sites/src"},
		{"https://contoso.sharepoint.com/sites/src", "https://contoso.sharepoint.com/sites"},
		{"https://contoso.sharepoint.com/src", "https://contoso.sharepoint.com"},
		{"https://contoso.sharepoint.com", "https://contoso.sharepoint.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.parent, parentWebURL(tt.webURL))
	}
}

func TestCollector_InheritedListSkippedWithoutIncludeInherited(t *testing.T) {
	lib := &sharepoint.List{ID: "lib-1", Title: "Documents", BaseTemplate: sharepoint.DocumentLibraryTemplate}

	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(testWeb, nil)
	client.On("GetDocumentLibraries", mock.Anything).Return([]*sharepoint.List{lib}, nil)
	client.On("HasUniquePermissions", mock.Anything, spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindList, ObjectID: "lib-1"}).
		Return(false, nil)

	collector := NewCollector(client, &fakeEnumerator{}, &fakeChecker{}, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Lists: true})

	require.NoError(t, err)
	assert.Empty(t, assignments)
	client.AssertNotCalled(t, "GetRoleAssignments", mock.Anything, mock.Anything)
}

func TestCollector_InheritedListRecordedWithIncludeInherited(t *testing.T) {
	lib := &sharepoint.List{ID: "lib-1", Title: "Documents", URL: "/sites/src/Shared Documents", BaseTemplate: sharepoint.DocumentLibraryTemplate}
	listTarget := spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindList, ObjectID: "lib-1"}

	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(testWeb, nil)
	client.On("GetDocumentLibraries", mock.Anything).Return([]*sharepoint.List{lib}, nil)
	client.On("HasUniquePermissions", mock.Anything, listTarget).Return(false, nil)
	client.On("GetRoleAssignments", mock.Anything, listTarget).Return(ownerGrant(), nil)

	collector := NewCollector(client, &fakeEnumerator{}, &fakeChecker{}, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Lists: true, IncludeInherited: true})

	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.True(t, assignments[0].Inherited)
	assert.Equal(t, testWeb.URL, assignments[0].InheritedFrom)
	assert.Equal(t, sharepoint.ObjectKindList, assignments[0].Object.Kind)
}

func TestCollector_ItemsFetchedOnlyForFlaggedIDs(t *testing.T) {
	lib := &sharepoint.List{ID: "lib-1", Title: "Documents", BaseTemplate: sharepoint.DocumentLibraryTemplate}
	items := []recon.RemoteItem{
		{ID: 1, Name: "a.txt", Path: "/sites/src/Shared Documents/a.txt"},
		{ID: 2, Name: "b.txt", Path: "/sites/src/Shared Documents/b.txt"},
		{ID: 3, Name: "c.txt", Path: "/sites/src/Shared Documents/c.txt"},
		{ID: 4, Name: "d.txt", Path: "/sites/src/Shared Documents/d.txt"},
	}

	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(testWeb, nil)
	client.On("GetDocumentLibraries", mock.Anything).Return([]*sharepoint.List{lib}, nil)
	for _, id := range []int{2, 4} {
		client.On("GetRoleAssignments", mock.Anything, spclient.PermissionTarget{
			ObjectType: sharepoint.ObjectKindItem,
			ObjectID:   "lib-1",
			ListItemID: id,
		}).Return(ownerGrant(), nil)
	}

	checker := &fakeChecker{unique: map[int]struct{}{2: {}, 4: {}}}
	collector := NewCollector(client, &fakeEnumerator{items: items}, checker, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Items: true, PageSize: 100})

	require.NoError(t, err)
	assert.Equal(t, "lib-1", checker.gotListID)
	assert.Equal(t, []int{1, 2, 3, 4}, checker.gotIDs)

	// Two flagged items, one surviving grant each.
	require.Len(t, assignments, 2)
	assert.Equal(t, "b.txt", assignments[0].Object.Title)
	assert.Equal(t, "d.txt", assignments[1].Object.Title)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "GetRoleAssignments", 2)
}

func TestCollector_EnumerationFailureSkipsItemAudit(t *testing.T) {
	lib := &sharepoint.List{ID: "lib-1", Title: "Documents", BaseTemplate: sharepoint.DocumentLibraryTemplate}

	client := &mockSiteAPI{}
	client.On("GetWeb", mock.Anything).Return(testWeb, nil)
	client.On("GetDocumentLibraries", mock.Anything).Return([]*sharepoint.List{lib}, nil)

	collector := NewCollector(client, &fakeEnumerator{err: assert.AnError}, &fakeChecker{}, nil)

	assignments, err := collector.Collect(context.Background(), Scope{Items: true, PageSize: 100})

	// Warn-and-continue: a broken library never fails the whole audit.
	require.NoError(t, err)
	assert.Empty(t, assignments)
}
