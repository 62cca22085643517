// Package fileid derives document IDs for PDFs ingested from disk.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs so they cannot collide with random document IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shoel:inbox"))

// ForPath returns a UUID (version 5) for the cleaned path. The same path always
// yields the same ID, so re-ingesting a file replaces its previous document.
func ForPath(path string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(path))).String()
}
