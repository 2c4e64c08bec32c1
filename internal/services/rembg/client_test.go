package rembg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"collider/internal/services"
)

type stubExecutor struct {
	calls   int
	gotArgs []string
	err     error
	onRun   func() error
}

func (s *stubExecutor) Run(_ context.Context, _, _ string, args []string) (string, error) {
	s.calls++
	s.gotArgs = args
	if s.onRun != nil {
		if err := s.onRun(); err != nil {
			return "", err
		}
	}
	return "", s.err
}

func TestCleanWritesStrippedImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.png")
	output := filepath.Join(dir, "a_clean.png")
	if err := os.WriteFile(input, []byte("png"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	stub := &stubExecutor{onRun: func() error {
		return os.WriteFile(output, []byte("clean"), 0o644)
	}}
	client := New("rembg", WithExecutor(stub))

	got, err := client.Clean(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got != output {
		t.Fatalf("expected cleaned path %s, got %s", output, got)
	}
	want := []string{"i", input, output}
	if len(stub.gotArgs) != len(want) {
		t.Fatalf("unexpected args: %v", stub.gotArgs)
	}
	for i, arg := range want {
		if stub.gotArgs[i] != arg {
			t.Fatalf("arg %d: expected %q, got %q", i, arg, stub.gotArgs[i])
		}
	}
}

func TestCleanPassThroughWhenUnconfigured(t *testing.T) {
	stub := &stubExecutor{}
	client := New("", WithExecutor(stub))
	if client.Enabled() {
		t.Fatal("expected client disabled without binary")
	}

	got, err := client.Clean(context.Background(), "/tmp/in.png", "/tmp/out.png")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got != "/tmp/in.png" {
		t.Fatalf("expected pass-through path, got %s", got)
	}
	if stub.calls != 0 {
		t.Fatalf("expected no invocations, got %d", stub.calls)
	}
}

func TestCleanFailureReturnsOriginalPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.png")
	output := filepath.Join(dir, "a_clean.png")

	stub := &stubExecutor{err: errors.New("exit status 1")}
	client := New("rembg", WithExecutor(stub))

	got, err := client.Clean(context.Background(), input, output)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if got != input {
		t.Fatalf("expected original path on failure, got %s", got)
	}
}

func TestCleanMissingOutputReturnsOriginalPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.png")
	output := filepath.Join(dir, "a_clean.png")

	stub := &stubExecutor{}
	client := New("rembg", WithExecutor(stub))

	got, err := client.Clean(context.Background(), input, output)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if got != input {
		t.Fatalf("expected original path, got %s", got)
	}
}
