package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/api"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/sharepoint"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// SiteClient abstracts the per-site REST operations the reconciliation and
// permission-audit flows need. One client serves one site.
type SiteClient interface {
	// Site structure
	GetWeb(ctx context.Context) (*sharepoint.Web, error)
	GetDocumentLibraries(ctx context.Context) ([]*sharepoint.List, error)

	// Permissions
	HasUniquePermissions(ctx context.Context, target PermissionTarget) (bool, error)
	GetRoleAssignments(ctx context.Context, target PermissionTarget) ([]RoleGrant, error)

	// Navigation
	GetNavigationSettings(ctx context.Context) (*sharepoint.NavigationSettings, error)
	SetQuickLaunchEnabled(ctx context.Context, enabled bool) error
}

// PermissionTarget identifies the securable object a permission operation
// addresses.
type PermissionTarget struct {
	ObjectType string // sharepoint.ObjectKindSite, ObjectKindList, or ObjectKindItem
	ObjectID   string // list GUID for lists and items
	ListItemID int    // required for items
}

// RoleGrant is one raw role assignment as SharePoint reports it: a principal
// and the role definition names bound to it. Baseline-role filtering happens
// at the collection layer, not here.
type RoleGrant struct {
	Principal sharepoint.Principal
	Roles     []string
}

// OData field selectors shared across queries.
const (
	webFields  = `Id,Title,Url,WebTemplate`
	listFields = `
		Id,Title,Hidden,ItemCount,BaseTemplate,
		RootFolder/ServerRelativeUrl
	`
	roleAssignmentFields = `
		RoleAssignments/Member/Id,
		RoleAssignments/Member/Title,
		RoleAssignments/Member/LoginName,
		RoleAssignments/Member/PrincipalType,
		RoleAssignments/Member/Email,
		RoleAssignments/RoleDefinitionBindings/Name
	`
	roleAssignmentExpand = `
		RoleAssignments,
		RoleAssignments/Member,
		RoleAssignments/RoleDefinitionBindings
	`
)

// GosipSiteClient implements SiteClient on top of the Gosip API client. The
// fluent API covers most calls; the auth client handles the navigation
// endpoints directly.
type GosipSiteClient struct {
	gosipAPI     *api.SP
	authClient   *gosip.SPClient
	cachedWebURL string
	logger       *logging.Logger
}

// NewGosipSiteClient wraps an authenticated gosip client pair.
func NewGosipSiteClient(gosipAPI *api.SP, authClient *gosip.SPClient, logger *logging.Logger) *GosipSiteClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &GosipSiteClient{
		gosipAPI:   gosipAPI,
		authClient: authClient,
		logger:     logger.WithComponent("site_client"),
	}
}

func (c *GosipSiteClient) requestConfig(ctx context.Context) *api.RequestConfig {
	return &api.RequestConfig{Context: ctx}
}

// GetWeb retrieves site metadata. This is the first call a pair makes per
// side and doubles as the authentication probe.
func (c *GosipSiteClient) GetWeb(ctx context.Context) (*sharepoint.Web, error) {
	sp := c.gosipAPI.Conf(c.requestConfig(ctx))
	res, err := sp.Web().Select(webFields).Get()
	if err != nil {
		return nil, fmt.Errorf("get web: %w", err)
	}

	var webData struct {
		Id          string
		Title       string
		Url         string
		WebTemplate string
	}
	if err := json.Unmarshal(res.Normalized(), &webData); err != nil {
		return nil, fmt.Errorf("decode web: %w", err)
	}
	c.cachedWebURL = webData.Url

	hasUnique, err := c.HasUniquePermissions(ctx, PermissionTarget{ObjectType: sharepoint.ObjectKindSite})
	if err != nil {
		c.logger.Debug("Failed to check web unique assignments", "error", err.Error())
		hasUnique = false
	}

	return &sharepoint.Web{
		ID:        webData.Id,
		URL:       webData.Url,
		Title:     webData.Title,
		Template:  webData.WebTemplate,
		HasUnique: hasUnique,
	}, nil
}

// GetDocumentLibraries retrieves the non-hidden document libraries of the
// web. Hidden and non-library lists (catalogs, system lists) are dropped
// here so callers only ever see reconcilable libraries.
func (c *GosipSiteClient) GetDocumentLibraries(ctx context.Context) ([]*sharepoint.List, error) {
	sp := c.gosipAPI.Conf(c.requestConfig(ctx))
	res, err := sp.Web().Lists().Select(listFields).Expand(`RootFolder`).Get()
	if err != nil {
		return nil, fmt.Errorf("get lists: %w", err)
	}

	var listsData []struct {
		Id           string
		Title        string
		Hidden       bool
		ItemCount    int
		BaseTemplate int
		RootFolder   struct{ ServerRelativeUrl string }
	}
	if err := json.Unmarshal(res.Normalized(), &listsData); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}

	libraries := make([]*sharepoint.List, 0, len(listsData))
	for _, l := range listsData {
		list := &sharepoint.List{
			ID:           l.Id,
			Title:        l.Title,
			URL:          l.RootFolder.ServerRelativeUrl,
			BaseTemplate: l.BaseTemplate,
			ItemCount:    l.ItemCount,
			Hidden:       l.Hidden,
		}
		if list.Hidden || !list.IsDocumentLibrary() {
			continue
		}
		libraries = append(libraries, list)
	}

	return libraries, nil
}

// HasUniquePermissions reports whether the object carries its own role
// assignments instead of inheriting them.
func (c *GosipSiteClient) HasUniquePermissions(ctx context.Context, target PermissionTarget) (bool, error) {
	sp := c.gosipAPI.Conf(c.requestConfig(ctx))
	switch target.ObjectType {
	case sharepoint.ObjectKindSite:
		return sp.Web().Roles().HasUniqueAssignments()
	case sharepoint.ObjectKindList:
		return sp.Web().Lists().GetByID(target.ObjectID).Roles().HasUniqueAssignments()
	case sharepoint.ObjectKindItem:
		return sp.Web().Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).Roles().HasUniqueAssignments()
	default:
		return false, fmt.Errorf("unknown target type: %s", target.ObjectType)
	}
}

// GetRoleAssignments retrieves the role assignments of an object with member
// and role definition bindings expanded.
func (c *GosipSiteClient) GetRoleAssignments(ctx context.Context, target PermissionTarget) ([]RoleGrant, error) {
	sp := c.gosipAPI.Conf(c.requestConfig(ctx))
	var data []byte

	switch target.ObjectType {
	case sharepoint.ObjectKindSite:
		res, err := sp.Web().
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get web role assignments: %w", err)
		}
		data = res.Normalized()

	case sharepoint.ObjectKindList:
		res, err := sp.Web().Lists().GetByID(target.ObjectID).
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get list role assignments: %w", err)
		}
		data = res.Normalized()

	case sharepoint.ObjectKindItem:
		res, err := sp.Web().Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get item role assignments: %w", err)
		}
		data = res.Normalized()

	default:
		return nil, fmt.Errorf("unknown target type: %s", target.ObjectType)
	}

	return parseRoleGrants(data)
}

// GetNavigationSettings reads the web navigation toggles.
func (c *GosipSiteClient) GetNavigationSettings(ctx context.Context) (*sharepoint.NavigationSettings, error) {
	httpClient := api.NewHTTPClient(c.authClient)
	endpoint := c.siteURL() + "/_api/web?$select=QuickLaunchEnabled,TreeViewEnabled"

	data, err := httpClient.Get(endpoint, &api.RequestConfig{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("get navigation settings: %w", err)
	}

	var payload struct {
		QuickLaunchEnabled bool `json:"QuickLaunchEnabled"`
		TreeViewEnabled    bool `json:"TreeViewEnabled"`
	}
	if err := json.Unmarshal(normalizeODataBody(data), &payload); err != nil {
		return nil, fmt.Errorf("decode navigation settings: %w", err)
	}

	return &sharepoint.NavigationSettings{
		QuickLaunchEnabled: payload.QuickLaunchEnabled,
		TreeViewEnabled:    payload.TreeViewEnabled,
	}, nil
}

// SetQuickLaunchEnabled toggles the quick launch navigation of the web via a
// MERGE update. This is the only mutation the client performs.
func (c *GosipSiteClient) SetQuickLaunchEnabled(ctx context.Context, enabled bool) error {
	httpClient := api.NewHTTPClient(c.authClient)
	endpoint := c.siteURL() + "/_api/web"

	body, _ := json.Marshal(map[string]bool{"QuickLaunchEnabled": enabled})
	if _, err := httpClient.Update(endpoint, bytes.NewBuffer(body), &api.RequestConfig{Context: ctx}); err != nil {
		return fmt.Errorf("set quick launch enabled=%t: %w", enabled, err)
	}

	c.logger.Info("Updated quick launch setting", "enabled", enabled, "site", c.siteURL())
	return nil
}

func (c *GosipSiteClient) siteURL() string {
	if c.cachedWebURL != "" {
		return strings.TrimRight(c.cachedWebURL, "/")
	}
	return strings.TrimRight(c.authClient.AuthCnfg.GetSiteURL(), "/")
}

// parseRoleGrants converts role assignment JSON into grants. Handles both
// the wrapped object form and a bare array.
func parseRoleGrants(data []byte) ([]RoleGrant, error) {
	type assignmentJSON struct {
		Member *struct {
			Id            int
			Title         string
			LoginName     string
			PrincipalType int
			Email         string
		}
		RoleDefinitionBindings []*struct {
			Name string
		}
	}

	var payload struct {
		RoleAssignments []*assignmentJSON
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		var direct []*assignmentJSON
		if err2 := json.Unmarshal(data, &direct); err2 != nil {
			return nil, fmt.Errorf("decode role assignments: %v / %v", err, err2)
		}
		payload.RoleAssignments = direct
	}

	grants := make([]RoleGrant, 0, len(payload.RoleAssignments))
	for _, ra := range payload.RoleAssignments {
		if ra == nil || ra.Member == nil {
			continue
		}
		grant := RoleGrant{
			Principal: sharepoint.Principal{
				ID:            int64(ra.Member.Id),
				PrincipalType: int64(ra.Member.PrincipalType),
				Title:         strings.TrimSpace(ra.Member.Title),
				LoginName:     ra.Member.LoginName,
				Email:         ra.Member.Email,
			},
		}
		for _, rd := range ra.RoleDefinitionBindings {
			if rd == nil || rd.Name == "" {
				continue
			}
			grant.Roles = append(grant.Roles, rd.Name)
		}
		grants = append(grants, grant)
	}

	return grants, nil
}

// normalizeODataBody unwraps the verbose OData envelope {"d": {...}} when
// present so callers can decode either response shape.
func normalizeODataBody(data []byte) []byte {
	var envelope struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.D) > 0 {
		return envelope.D
	}
	return data
}
