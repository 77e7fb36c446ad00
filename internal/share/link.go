// Package share builds and reads the references that let a new participant
// join a document: share links and signed share tokens.
package share

import (
	"net/url"
	"strings"
)

// QueryParam is the query parameter carrying the document ID in a share link.
const QueryParam = "trip"

// Link returns the canonical share reference <origin><path>?trip=<documentID>.
// The result depends only on its arguments.
func Link(origin, path, documentID string) string {
	return origin + path + "?" + QueryParam + "=" + url.QueryEscape(documentID)
}

// DocumentID extracts the document ID from a share reference. It accepts a
// full link, a bare query ("?trip=x" or "trip=x"), and returns false when the
// reference carries no non-empty trip parameter.
func DocumentID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	query := ref
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		query = ref[i+1:]
	} else if strings.Contains(ref, "://") {
		return "", false
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}
	id := values.Get(QueryParam)
	return id, id != ""
}
