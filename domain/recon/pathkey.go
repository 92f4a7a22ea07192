package recon

import (
	"net/url"
	"strings"
)

// NormalizeKey derives the canonical comparison key for a server-relative
// path. The key depends only on (path, anchorSiteURL, collectionName), never
// on enumeration order or timing, so it can be recomputed after the fact.
//
// Derivation, in order of preference:
//  1. Strip the site's own root-relative prefix, then the next segment (the
//     library's URL name, which may differ from its display title).
//  2. Find the library's display title (or its no-space variant, e.g.
//     "Site Assets" -> "siteassets") as a literal path segment and take
//     everything after it.
//  3. Fall back to the full lowered path.
//
// Percent-encoded sequences are kept as-is: encoded bytes can be literal
// characters inside real file names, and decoding would corrupt the key.
func NormalizeKey(path, anchorSiteURL, collectionName string) string {
	p := strings.ToLower(path)

	if rest, ok := stripSitePrefix(p, anchorSiteURL); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			return after
		}
		return rest
	}

	title := strings.ToLower(collectionName)
	for _, segment := range []string{title, strings.ReplaceAll(title, " ", "")} {
		if segment == "" {
			continue
		}
		if _, after, found := strings.Cut(p, "/"+segment+"/"); found {
			return after
		}
	}

	return p
}

// stripSitePrefix removes the site's root-relative path from p, returning the
// remainder without a leading slash.
func stripSitePrefix(p, anchorSiteURL string) (string, bool) {
	u, err := url.Parse(anchorSiteURL)
	if err != nil {
		return "", false
	}
	sitePath := strings.ToLower(strings.TrimRight(u.Path, "/"))

	// Root sites have an empty root-relative path; every server-relative
	// path "matches" it.
	if sitePath == "" {
		return strings.TrimPrefix(p, "/"), true
	}
	if rest, found := strings.CutPrefix(p, sitePath+"/"); found {
		return rest, true
	}
	return "", false
}
