// Package errkind carries the download error taxonomy as a typed error
// rather than a set of sentinel strings, so callers can use
// errors.As/errors.Is instead of matching on message text.
package errkind

import "fmt"

// Kind enumerates the failure categories a download can end in. It is a
// taxonomy, not a set of Go types: every kind is carried by the single
// DownloadError below.
type Kind int

const (
	ManifestRejected Kind = iota
	ManifestShape
	AuthRequired
	RangeUnsupported
	IntegrityMismatch
	Stall
	TransientNetwork
	SizeMismatch
	LocalIO
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ManifestRejected:
		return "ManifestRejected"
	case ManifestShape:
		return "ManifestShape"
	case AuthRequired:
		return "AuthRequired"
	case RangeUnsupported:
		return "RangeUnsupported"
	case IntegrityMismatch:
		return "IntegrityMismatch"
	case Stall:
		return "Stall"
	case TransientNetwork:
		return "TransientNetwork"
	case SizeMismatch:
		return "SizeMismatch"
	case LocalIO:
		return "LocalIO"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Retryable reports whether a worker should retry on this kind rather than
// surface it as the file's fatal result. LocalIO is retryable but capped at
// one retry by the caller (see MaxLocalIORetries), independent of the
// general task retry budget that governs Stall and TransientNetwork.
func (k Kind) Retryable() bool {
	switch k {
	case Stall, TransientNetwork, LocalIO:
		return true
	default:
		return false
	}
}

// MaxLocalIORetries is the fixed number of retries a LocalIO failure gets
// before it becomes fatal for the file, regardless of the configured task
// retry budget used for Stall and TransientNetwork.
const MaxLocalIORetries = 1

// DownloadError wraps an underlying error with the kind that classifies it
// and, where applicable, the file path it occurred on.
type DownloadError struct {
	Kind Kind
	Path string
	Err  error
}

func New(kind Kind, path string, err error) *DownloadError {
	return &DownloadError{Kind: kind, Path: path, Err: err}
}

func (e *DownloadError) Error() string {
	if e.Path == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errkind.Cancelled) read naturally by comparing
// against a bare Kind wrapped as a DownloadError with no cause.
func (e *DownloadError) Is(target error) bool {
	other, ok := target.(*DownloadError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel returns a zero-cause DownloadError usable with errors.Is, e.g.
// errors.Is(err, errkind.Sentinel(errkind.Cancelled)).
func Sentinel(kind Kind) *DownloadError { return &DownloadError{Kind: kind} }
