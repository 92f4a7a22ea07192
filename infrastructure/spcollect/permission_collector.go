package spcollect

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/recon"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/sharepoint"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spclient"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// SiteAPI is the slice of site client behavior the collector needs.
type SiteAPI interface {
	GetWeb(ctx context.Context) (*sharepoint.Web, error)
	GetDocumentLibraries(ctx context.Context) ([]*sharepoint.List, error)
	HasUniquePermissions(ctx context.Context, target spclient.PermissionTarget) (bool, error)
	GetRoleAssignments(ctx context.Context, target spclient.PermissionTarget) ([]spclient.RoleGrant, error)
}

// ItemEnumerator streams library items.
type ItemEnumerator interface {
	EnumerateItems(ctx context.Context, library string, pageSize int, fn func(recon.RemoteItem) error) (int, error)
}

// FlagChecker probes the unique-permission flag in bulk.
type FlagChecker interface {
	CheckUniquePermissions(ctx context.Context, listID string, itemIDs []int) (map[int]struct{}, error)
}

// Scope selects which levels of the site a collection run covers.
type Scope struct {
	Site  bool
	Lists bool
	Items bool

	// IncludeInherited also records site and list assignments that are
	// inherited from the parent. Items are exempt: only uniquely secured
	// items are fetched, regardless of this flag, because fanning out role
	// queries to every inheriting item is pure noise at real library sizes.
	IncludeInherited bool

	PageSize       int
	CheckBatchSize int
}

// Collector gathers permission assignments for a site, using the batched
// flag probe to decide which items deserve a role assignment query.
type Collector struct {
	client  SiteAPI
	fetcher ItemEnumerator
	checker FlagChecker
	logger  *logging.Logger
}

// NewCollector creates a permission collector.
func NewCollector(client SiteAPI, fetcher ItemEnumerator, checker FlagChecker, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Collector{
		client:  client,
		fetcher: fetcher,
		checker: checker,
		logger:  logger.WithComponent("permission_collector"),
	}
}

// Collect walks the scoped levels of the site and returns the surviving
// assignments. Failures below site level are logged and skipped so a single
// broken list or item does not abort the audit.
func (c *Collector) Collect(ctx context.Context, scope Scope) ([]sharepoint.PermissionAssignment, error) {
	web, err := c.client.GetWeb(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve web: %w", err)
	}

	var assignments []sharepoint.PermissionAssignment

	if scope.Site {
		assignments = append(assignments, c.collectSite(ctx, web, scope)...)
	}

	if scope.Lists || scope.Items {
		libraries, err := c.client.GetDocumentLibraries(ctx)
		if err != nil {
			return assignments, fmt.Errorf("list document libraries: %w", err)
		}
		for _, lib := range libraries {
			if err := ctx.Err(); err != nil {
				return assignments, err
			}
			if scope.Lists {
				assignments = append(assignments, c.collectList(ctx, web, lib, scope)...)
			}
			if scope.Items {
				assignments = append(assignments, c.collectItems(ctx, web, lib, scope)...)
			}
		}
	}

	c.logger.Info("Permission collection complete",
		"site", web.URL,
		"assignments", len(assignments))
	return assignments, nil
}

func (c *Collector) collectSite(ctx context.Context, web *sharepoint.Web, scope Scope) []sharepoint.PermissionAssignment {
	if !web.HasUnique && !scope.IncludeInherited {
		return nil
	}

	grants, err := c.client.GetRoleAssignments(ctx, spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindSite})
	if err != nil {
		c.logger.Warn("Failed to fetch site role assignments", "site", web.URL, "error", err.Error())
		return nil
	}

	object := sharepoint.ObjectRef{
		Kind:    sharepoint.ObjectKindSite,
		Title:   web.Title,
		URL:     web.URL,
		SiteURL: web.URL,
	}
	inheritedFrom := ""
	if !web.HasUnique {
		inheritedFrom = parentWebURL(web.URL)
	}
	return buildAssignments(grants, object, !web.HasUnique, inheritedFrom)
}

// parentWebURL is the nearest ancestor a web inherits from: one path segment
// up, or the tenant root when the web sits directly under the host.
func parentWebURL(webURL string) string {
	u, err := url.Parse(webURL)
	if err != nil {
		return webURL
	}
	path := strings.TrimRight(u.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx > 0 {
		u.Path = path[:idx]
	} else {
		u.Path = ""
	}
	return u.String()
}

func (c *Collector) collectList(ctx context.Context, web *sharepoint.Web, list *sharepoint.List, scope Scope) []sharepoint.PermissionAssignment {
	target := spclient.PermissionTarget{ObjectType: sharepoint.ObjectKindList, ObjectID: list.ID}

	unique, err := c.client.HasUniquePermissions(ctx, target)
	if err != nil {
		c.logger.Warn("Failed to check list inheritance", "list", list.Title, "error", err.Error())
		return nil
	}
	if !unique && !scope.IncludeInherited {
		return nil
	}

	grants, err := c.client.GetRoleAssignments(ctx, target)
	if err != nil {
		c.logger.Warn("Failed to fetch list role assignments", "list", list.Title, "error", err.Error())
		return nil
	}

	object := sharepoint.ObjectRef{
		Kind:    sharepoint.ObjectKindList,
		Title:   list.Title,
		URL:     list.URL,
		SiteURL: web.URL,
	}
	inheritedFrom := ""
	if !unique {
		inheritedFrom = web.URL
	}
	return buildAssignments(grants, object, !unique, inheritedFrom)
}

// collectItems runs the two-phase item strategy: enumerate every item id,
// probe the unique flag in bulk, then fetch role assignments only for the
// flagged subset.
func (c *Collector) collectItems(ctx context.Context, web *sharepoint.Web, list *sharepoint.List, scope Scope) []sharepoint.PermissionAssignment {
	items := make(map[int]recon.RemoteItem)
	_, err := c.fetcher.EnumerateItems(ctx, list.Title, scope.PageSize, func(item recon.RemoteItem) error {
		items[item.ID] = item
		return nil
	})
	if err != nil {
		c.logger.Warn("Item enumeration failed, skipping item-level audit",
			"list", list.Title, "error", err.Error())
		return nil
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]int, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	uniqueIDs, err := c.checker.CheckUniquePermissions(ctx, list.ID, ids)
	if err != nil {
		c.logger.Warn("Unique-flag probe failed, skipping item-level audit",
			"list", list.Title, "error", err.Error())
		return nil
	}

	c.logger.Debug("Item flag probe complete",
		"list", list.Title,
		"items", len(ids),
		"unique", len(uniqueIDs))

	var assignments []sharepoint.PermissionAssignment
	for _, id := range ids {
		if _, ok := uniqueIDs[id]; !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return assignments
		}

		grants, err := c.client.GetRoleAssignments(ctx, spclient.PermissionTarget{
			ObjectType: sharepoint.ObjectKindItem,
			ObjectID:   list.ID,
			ListItemID: id,
		})
		if err != nil {
			c.logger.Warn("Failed to fetch item role assignments",
				"list", list.Title, "item_id", id, "error", err.Error())
			continue
		}

		item := items[id]
		object := sharepoint.ObjectRef{
			Kind:    sharepoint.ObjectKindItem,
			Title:   item.Name,
			URL:     item.Path,
			SiteURL: web.URL,
		}
		assignments = append(assignments, buildAssignments(grants, object, false, "")...)
	}
	return assignments
}

// buildAssignments converts raw grants into domain assignments, dropping the
// baseline read marker and any grant left with no roles.
func buildAssignments(grants []spclient.RoleGrant, object sharepoint.ObjectRef, inherited bool, inheritedFrom string) []sharepoint.PermissionAssignment {
	assignments := make([]sharepoint.PermissionAssignment, 0, len(grants))
	for _, grant := range grants {
		roles := sharepoint.FilterBaselineRoles(grant.Roles)
		if len(roles) == 0 {
			continue
		}
		assignments = append(assignments, sharepoint.PermissionAssignment{
			Principal:     grant.Principal,
			Object:        object,
			Roles:         roles,
			Inherited:     inherited,
			InheritedFrom: inheritedFrom,
		})
	}
	return assignments
}
