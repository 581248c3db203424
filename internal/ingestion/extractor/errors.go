package extractor

import "fmt"

// UnsupportedFormatError rejects a declared file type that has no
// handler. It is raised before any file processing starts.
type UnsupportedFormatError struct {
	FileType string
}

func (e *UnsupportedFormatError) Error() string {
	if e == nil {
		return "unsupported file format"
	}
	return fmt.Sprintf("unsupported file format %q", e.FileType)
}

// ExtractionError wraps a total parse failure for one file. Per-page
// OCR failures never raise this; they downgrade the page instead.
type ExtractionError struct {
	Path  string
	Cause error
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return "extraction failed"
	}
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func extractErr(path string, cause error) error {
	return &ExtractionError{Path: path, Cause: cause}
}
