package recon

import "time"

// ItemType classifies a remote item as a file or folder.
type ItemType string

const (
	ItemTypeFile   ItemType = "file"
	ItemTypeFolder ItemType = "folder"
)

// RemoteItem is an immutable snapshot of a document-library row captured at
// enumeration time. It is owned by the enumeration call that produced it and
// never mutated afterwards.
type RemoteItem struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"` // leaf name (FileLeafRef)
	Path         string    `json:"path"` // server-relative path (FileRef)
	Size         int64     `json:"size"`
	VersionCount int       `json:"version_count"`
	Created      time.Time `json:"created"`
	Modified     time.Time `json:"modified"`
	Type         ItemType  `json:"type"`
}

// IsFolder returns true for folder rows.
func (i RemoteItem) IsFolder() bool {
	return i.Type == ItemTypeFolder
}

// KeyContext anchors path-key derivation for one enumerated side: the site
// the items were enumerated from and the library they came out of.
type KeyContext struct {
	SiteURL      string
	LibraryTitle string
}

// Key derives the item's canonical comparison key within this context.
func (k KeyContext) Key(item RemoteItem) string {
	return NormalizeKey(item.Path, k.SiteURL, k.LibraryTitle)
}
