package enginerr

import (
	"errors"
	"testing"
)

func TestError_MessageIncludesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := Wrap(TransportError, "dial 127.0.0.1:57110", cause)

	want := "transport_error: dial 127.0.0.1:57110: connection refused"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestError_MessageWithoutCause(t *testing.T) {
	t.Parallel()
	err := New(NotConnected, "spawn_voice: no backend installed")

	want := "not_connected: spawn_voice: no backend installed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := Wrap(BackendError, "op failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestIs_MatchesKind(t *testing.T) {
	t.Parallel()
	err := New(ServerBusy, "already recording")
	if !Is(err, ServerBusy) {
		t.Error("expected Is to match the error's kind")
	}
	if Is(err, ServerCrashed) {
		t.Error("expected Is to reject a different kind")
	}
}

func TestIs_NonEngineErrorReturnsFalse(t *testing.T) {
	t.Parallel()
	if Is(errors.New("plain error"), NotConnected) {
		t.Error("expected Is to return false for a non-engine error")
	}
}

func TestIs_MatchesOuterKindWhenWrapped(t *testing.T) {
	t.Parallel()
	inner := New(CompileFailed, "exit status 1")
	outer := Wrap(BackendError, "compile step failed", inner)

	// outer is itself a BackendError, not a CompileFailed — Is should only
	// match the outermost kind, not reach through to the wrapped *Error.
	if !Is(outer, BackendError) {
		t.Error("expected Is to match the outer kind")
	}
	if Is(outer, CompileFailed) {
		t.Error("expected Is not to match the wrapped inner kind")
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	cases := map[Kind]string{
		NotConnected:       "not_connected",
		ServerBusy:         "server_busy",
		TransportError:     "transport_error",
		ServerCrashed:      "server_crashed",
		CompileFailed:      "compile_failed",
		ExecutableNotFound: "executable_not_found",
		BackendError:       "backend_error",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
