package fetch

import (
	"fmt"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrChecksumMismatch is matched (via errors.Is) by any ChecksumMismatchError.
const ErrChecksumMismatch = sentinel.Error("archive checksum mismatch")

// ErrUnsupportedChecksum is returned for checksum algorithms other than
// sha256 and sha512.
const ErrUnsupportedChecksum = sentinel.Error("unsupported checksum algorithm")

// NetworkError describes a failed download attempt. Retryable reports whether
// the failure is transient (connection errors, 5xx, 429, timeouts) or final
// (other 4xx responses).
type NetworkError struct {
	URL       string
	Status    int // 0 when the request never produced a response
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports that a downloaded archive did not hash to the
// digest declared by the catalog. It unwraps to ErrChecksumMismatch.
type ChecksumMismatchError struct {
	URL       string
	Algorithm string
	Want      string
	Got       string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("verify %s: %s mismatch: want %s, got %s", e.URL, e.Algorithm, e.Want, e.Got)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }
