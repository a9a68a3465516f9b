package pdf

import "fmt"

// ErrorKind classifies why a document's text could not be acquired
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindInvalidFile
	KindTooLarge
	KindCorrupt
	KindNoText
	KindOutsideDirectory
)

// String returns a string representation of the ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidFile:
		return "INVALID_FILE"
	case KindTooLarge:
		return "TOO_LARGE"
	case KindCorrupt:
		return "CORRUPT"
	case KindNoText:
		return "NO_TEXT"
	case KindOutsideDirectory:
		return "OUTSIDE_DIRECTORY"
	default:
		return "UNKNOWN"
	}
}

// AcquisitionError reports a document whose text could not be obtained.
// It is fatal to a run: no extraction is attempted.
type AcquisitionError struct {
	Kind ErrorKind
	Path string
	Err  error
}

// Error implements the error interface
func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Path)
}

// Unwrap returns the underlying error
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func newAcquisitionError(kind ErrorKind, path string, format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}
