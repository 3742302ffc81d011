package platform

import (
	"runtime"
	"testing"
)

func TestTagString(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		tag  Tag
		want string
	}{
		"os and arch":  {tag: Tag{OS: "linux", Arch: "amd64"}, want: "linux-amd64"},
		"with libc":    {tag: Tag{OS: "linux", Arch: "arm64", Libc: "musl"}, want: "linux-arm64-musl"},
		"darwin arm64": {tag: Tag{OS: "darwin", Arch: "arm64"}, want: "darwin-arm64"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.tag.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCurrentIsStable(t *testing.T) {
	t.Parallel()

	first := Current()
	second := Current()
	if first != second {
		t.Errorf("Current() not stable: %v then %v", first, second)
	}
}

func TestCurrentMatchesRuntime(t *testing.T) {
	t.Parallel()

	tag := Current()
	if tag.OS != runtime.GOOS {
		t.Errorf("tag.OS = %q, want %q", tag.OS, runtime.GOOS)
	}
	// On supported architectures the arch must match the runtime; otherwise
	// the fallback tag is expected.
	if _, ok := knownArches[runtime.GOARCH]; ok {
		if tag.Arch != runtime.GOARCH {
			t.Errorf("tag.Arch = %q, want %q", tag.Arch, runtime.GOARCH)
		}
	} else if tag != FallbackTag {
		t.Errorf("unsupported arch should yield FallbackTag, got %v", tag)
	}
}
