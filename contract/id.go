package contract

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes name-based identifiers generated from contract text.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/brunobiangulo/contractgraph"))

// FileID derives a stable identifier from a source file name by stripping
// the directory and extension.
func FileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ContentID derives a stable identifier from the raw contract text. The
// same text always yields the same identifier.
func ContentID(text string) string {
	return uuid.NewSHA1(idNamespace, []byte(text)).String()
}
