package sharepoint

// Principal represents a user, group, or security principal.
type Principal struct {
	ID            int64  `json:"id"`
	PrincipalType int64  `json:"principal_type"`
	Title         string `json:"title"`
	LoginName     string `json:"login_name"`
	Email         string `json:"email,omitempty"`
}

// Common SharePoint principal types.
const (
	PrincipalTypeUser            = 1
	PrincipalTypeDistribution    = 2
	PrincipalTypeSecurity        = 4
	PrincipalTypeSharePointGroup = 8
)

// IsUser returns true if this is a user principal.
func (p *Principal) IsUser() bool {
	return p.PrincipalType == PrincipalTypeUser
}

// IsSharePointGroup returns true if this is a SharePoint group.
func (p *Principal) IsSharePointGroup() bool {
	return p.PrincipalType == PrincipalTypeSharePointGroup
}

// GetDisplayName returns the best display name for the principal.
func (p *Principal) GetDisplayName() string {
	if p.Title != "" {
		return p.Title
	}
	if p.LoginName != "" {
		return p.LoginName
	}
	return p.Email
}

// Object kind constants for permission targets.
const (
	ObjectKindSite = "site"
	ObjectKindList = "list"
	ObjectKindItem = "item"
)

// ObjectRef identifies the securable object an assignment was found on.
type ObjectRef struct {
	Kind    string `json:"kind"` // "site", "list", "item"
	Title   string `json:"title"`
	URL     string `json:"url"`
	SiteURL string `json:"site_url"`
}

// BaselineReadRole is the marker role SharePoint grants for read-via-
// inherited-access only. It carries no information beyond inheritance, so
// collected role sets filter it out.
const BaselineReadRole = "Limited Access"

// PermissionAssignment is one explicit or inherited access-control entry on
// a securable object. Never persisted with an empty role set.
type PermissionAssignment struct {
	Principal     Principal `json:"principal"`
	Object        ObjectRef `json:"object"`
	Roles         []string  `json:"roles"`
	Inherited     bool      `json:"inherited"`
	InheritedFrom string    `json:"inherited_from,omitempty"` // nearest ancestor holding the real assignment
}

// FilterBaselineRoles returns the role set with the baseline read-only
// marker removed. An assignment whose role set becomes empty afterwards
// should be discarded.
func FilterBaselineRoles(roles []string) []string {
	filtered := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == BaselineReadRole {
			continue
		}
		filtered = append(filtered, role)
	}
	return filtered
}

// NavigationSettings mirrors the web-level navigation toggles the
// administrative client audits and, narrowly, mutates.
type NavigationSettings struct {
	QuickLaunchEnabled bool `json:"quick_launch_enabled"`
	TreeViewEnabled    bool `json:"tree_view_enabled"`
}

// Web is the basic site metadata used to anchor collection runs.
type Web struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Template  string `json:"template"`
	HasUnique bool   `json:"has_unique"`
}

// List is a SharePoint list or document library.
type List struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"` // root folder server-relative URL
	BaseTemplate int    `json:"base_template"`
	ItemCount    int    `json:"item_count"`
	Hidden       bool   `json:"hidden"`
}

// DocumentLibraryTemplate is the SharePoint base template id for document
// libraries.
const DocumentLibraryTemplate = 101

// IsDocumentLibrary returns true for document library lists.
func (l *List) IsDocumentLibrary() bool {
	return l.BaseTemplate == DocumentLibraryTemplate
}
