package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExecutesASimplePipelineAndExitsOnEOF(t *testing.T) {
	// External commands write to the process's own stdout, not to the
	// Shell's out writer, so the command output is captured via a file.
	out := filepath.Join(t.TempDir(), "out.txt")
	stdin := strings.NewReader("echo hello > " + out + "\n")
	var stdout, stderr bytes.Buffer

	s := New(stdin, &stdout, &stderr, 4)
	defer s.Close()

	code := s.Run()
	if code != 0 {
		t.Fatalf("exit code; actual: %d, expected: 0", code)
	}
	contents, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read command output: %s", err)
	}
	if string(contents) != "hello\n" {
		t.Fatalf("expected the command output %q, got %q", "hello\n", string(contents))
	}
}

func TestRunReturnsCleanlyOnEOFWithoutExitCommand(t *testing.T) {
	stdin := strings.NewReader("true\n")
	var stdout, stderr bytes.Buffer

	s := New(stdin, &stdout, &stderr, 4)
	defer s.Close()

	code := s.Run()
	if code != 0 {
		t.Fatalf("exit code; actual: %d, expected: 0", code)
	}
}

func TestRunReportsUnresolvedCommand(t *testing.T) {
	stdin := strings.NewReader("this-binary-does-not-exist-anywhere\nexit\n")
	var stdout, stderr bytes.Buffer

	s := New(stdin, &stdout, &stderr, 4)
	defer s.Close()

	s.Run()
	if !strings.Contains(stderr.String(), "Command not found") {
		t.Fatalf("expected a Command not found diagnostic, got %q", stderr.String())
	}
}

func TestRunBackgroundsAJobOnAmpersand(t *testing.T) {
	stdin := strings.NewReader("sleep 0.1 &\nexit\n")
	var stdout, stderr bytes.Buffer

	s := New(stdin, &stdout, &stderr, 4)
	defer s.Close()

	s.Run()
	if !strings.Contains(stdout.String(), "[1]") {
		t.Fatalf("expected a background job notice, got %q", stdout.String())
	}
}
