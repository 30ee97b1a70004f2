package errs

import (
	"errors"
	"testing"
)

func TestNewFormatsDiagnostic(t *testing.T) {
	e := New(CodeParseError, "unexpected token %q at %d", "SELEC", 3)
	if e.Code != CodeParseError {
		t.Errorf("expected CodeParseError, got %v", e.Code)
	}
	if e.Diagnostic != `unexpected token "SELEC" at 3` {
		t.Errorf("unexpected diagnostic: %q", e.Diagnostic)
	}
	if e.Error() != `[1001] unexpected token "SELEC" at 3` {
		t.Errorf("unexpected Error() text: %q", e.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(CodeIOError, cause, "writing batch")
	if !errors.Is(e, cause) {
		t.Errorf("expected Wrap to preserve the cause for errors.Is")
	}
	if errors.Unwrap(e) != cause {
		t.Errorf("expected Unwrap() to return the original cause")
	}
}

func TestWithSafeAndWithRetriable(t *testing.T) {
	e := New(CodeTimeout, "deadline exceeded").WithSafe("the request timed out").WithRetriable(true)
	if e.Safe != "the request timed out" || !e.Retriable {
		t.Errorf("expected the Safe message set and Retriable true, got %+v", e)
	}
}

func TestAsExtractsError(t *testing.T) {
	original := New(CodeDictionaryMissing, "missing term")
	wrapped := Wrap(CodeIOError, original, "outer context")

	e, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to find an *Error in the chain")
	}
	if e.Code != CodeIOError {
		t.Errorf("expected the outermost code CodeIOError, got %v", e.Code)
	}
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	if ok {
		t.Errorf("expected As to fail for a non-*Error")
	}
}

func TestCategoriesAreDistinct(t *testing.T) {
	codes := []Code{
		CodeParseError, CodeStoreClosed, CodeMaxIterations, CodeInvalidInput, CodeInternalError,
	}
	seen := map[Category]bool{}
	for _, c := range codes {
		cat := New(c, "x").Code.Category()
		seen[cat] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct categories across the sampled codes, got %d", len(seen))
	}
}
