package artifact

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// Kind classifies a failure for operators. Bridge callers only ever see the
// rendered message; Go callers may branch with IsKind.
type Kind int

const (
	KindDownloadFailed Kind = iota
	KindPermissionDenied
	KindNetworkUnreachable
	KindTimeout
	KindHTTPError
	KindDiskSpaceExhausted
	KindIncompleteDownload
	KindEmptyDownload
	KindChunkDecodeError
	KindDirectoryCreateFailed
	KindCannotRemoveExisting
	KindUnsupportedOperation
	KindSubprocessError
	KindArtifactNotFound
	KindNoWritableLocation
	KindCancelled
	KindInvalidRequest
)

var kindNames = map[Kind]string{
	KindDownloadFailed:        "download failed",
	KindPermissionDenied:      "permission denied",
	KindNetworkUnreachable:    "network unreachable",
	KindTimeout:               "network timeout",
	KindHTTPError:             "http error",
	KindDiskSpaceExhausted:    "disk space exhausted",
	KindIncompleteDownload:    "incomplete download",
	KindEmptyDownload:         "empty download",
	KindChunkDecodeError:      "chunk decode error",
	KindDirectoryCreateFailed: "directory create failed",
	KindCannotRemoveExisting:  "cannot remove existing file",
	KindUnsupportedOperation:  "unsupported operation",
	KindSubprocessError:       "subprocess error",
	KindArtifactNotFound:      "artifact not found",
	KindNoWritableLocation:    "no writable location",
	KindCancelled:             "cancelled",
	KindInvalidRequest:        "invalid request",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type surfaced by this module
type Error struct {
	Kind Kind
	Op   string // download, save, probe, open, reveal, install, resolve
	Path string

	// HTTPError
	Status int
	Reason string

	// ChunkDecodeError
	Index int

	// IncompleteDownload
	Expected int64
	Actual   int64

	// SubprocessError
	Stderr string

	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())

	switch e.Kind {
	case KindHTTPError:
		fmt.Fprintf(&b, " (status %d %s)", e.Status, e.Reason)
	case KindChunkDecodeError:
		fmt.Fprintf(&b, " at chunk %d", e.Index)
	case KindIncompleteDownload:
		if e.Expected > 0 {
			fmt.Fprintf(&b, " (expected %d bytes, got %d)", e.Expected, e.Actual)
		}
	case KindSubprocessError:
		if e.Stderr != "" {
			fmt.Fprintf(&b, " (%s)", e.Stderr)
		}
	}

	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err, or anything it wraps, is an *Error of kind k
func IsKind(err error, k Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == k
	}
	return false
}

var (
	permissionMarkers = []string{"permission denied", "access is denied", "operation not permitted", "read-only file system"}
	diskSpaceMarkers  = []string{"no space left", "disk full", "not enough space", "quota exceeded"}
	dnsMarkers        = []string{"no such host", "dns", "name resolution", "name or service not known", "server misbehaving"}
)

// Classify maps a low-level failure to a Kind. Typed checks come first, then
// the message-substring mapping used for operator diagnosis.
func Classify(err error) Kind {
	if err == nil {
		return KindDownloadFailed
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, os.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		return KindDiskSpaceExhausted
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetworkUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, permissionMarkers):
		return KindPermissionDenied
	case containsAny(msg, diskSpaceMarkers):
		return KindDiskSpaceExhausted
	case containsAny(msg, dnsMarkers):
		return KindNetworkUnreachable
	}
	return KindDownloadFailed
}

// Wrap turns err into an *Error using Classify. Existing *Error values pass through.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, Path: path, Err: err}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
