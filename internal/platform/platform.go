package platform

import (
	"os"
	"runtime"
	"strings"
	"sync"
)

// Tag identifies the OS, CPU architecture, and libc/ABI variant a release
// archive is built for. Releases in the catalog carry the same tag string, so
// resolution is an exact string match.
type Tag struct {
	OS   string // "linux", "darwin", "windows"
	Arch string // "amd64", "arm64", ...
	Libc string // "" for the platform default, "musl" for musl-based Linux
}

// String renders the tag in the catalog's canonical form:
// "<os>-<arch>" or "<os>-<arch>-<libc>".
func (t Tag) String() string {
	s := t.OS + "-" + t.Arch
	if t.Libc != "" {
		s += "-" + t.Libc
	}
	return s
}

// FallbackTag is the tag reported for machines whose architecture has no
// known release builds. Resolution against it fails with a not-found error
// rather than the detection itself erroring.
var FallbackTag = Tag{OS: runtime.GOOS, Arch: "unknown"}

// knownArches are architectures release archives are published for.
var knownArches = map[string]struct{}{
	"amd64":   {},
	"arm64":   {},
	"386":     {},
	"arm":     {},
	"ppc64le": {},
	"s390x":   {},
}

// current is the process-wide memoized detection result. Detection is pure
// for a given machine, so computing it once is both a correctness statement
// (every component sees the same tag) and a minor optimization.
var current = sync.OnceValue(detect)

// Current returns the canonical platform tag for this machine, computed once
// per process. It has no error path: an unrecognized architecture yields
// FallbackTag.
func Current() Tag {
	return current()
}

// detect derives the tag from the Go runtime plus a musl-libc probe on Linux.
func detect() Tag {
	if _, ok := knownArches[runtime.GOARCH]; !ok {
		return FallbackTag
	}
	t := Tag{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if t.OS == "linux" && isMusl() {
		t.Libc = "musl"
	}
	return t
}

// isMusl reports whether this Linux system uses musl instead of glibc.
// Alpine and similar distributions ship the dynamic loader under
// /lib/ld-musl-<arch>.so.1; checking for it avoids executing any binary.
func isMusl() bool {
	entries, err := os.ReadDir("/lib")
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ld-musl-") {
			return true
		}
	}
	return false
}
