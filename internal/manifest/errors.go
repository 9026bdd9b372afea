package manifest

import "fmt"

// ManifestError is a file-scoped startup failure (spec.md §4.B, §7:
// "Manifest-error | at startup | process fails to start with the offending
// filename").
type ManifestError struct {
	File    string
	Message string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest error in %s: %s", e.File, e.Message)
}

func newManifestError(file, format string, args ...any) *ManifestError {
	return &ManifestError{File: file, Message: fmt.Sprintf(format, args...)}
}
