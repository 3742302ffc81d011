package sentinel

import (
	"errors"
	"fmt"
	"testing"
)

const errTest = Error("something went wrong")

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	if got := errTest.Error(); got != "something went wrong" {
		t.Errorf("Error() = %q, want %q", got, "something went wrong")
	}
}

func TestErrorsIsDirect(t *testing.T) {
	t.Parallel()

	if !errors.Is(errTest, errTest) {
		t.Error("errors.Is should match a sentinel against itself")
	}
}

func TestErrorsIsWrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("outer context: %w", errTest)
	if !errors.Is(wrapped, errTest) {
		t.Error("errors.Is should match a sentinel through a wrapped chain")
	}

	doubleWrapped := fmt.Errorf("more context: %w", wrapped)
	if !errors.Is(doubleWrapped, errTest) {
		t.Error("errors.Is should match a sentinel through two wrap levels")
	}
}

func TestDistinctSentinelsDoNotMatch(t *testing.T) {
	t.Parallel()

	const other = Error("a different failure")
	if errors.Is(errTest, other) {
		t.Error("distinct sentinel values must not compare equal")
	}
}
