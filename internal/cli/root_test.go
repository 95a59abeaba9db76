package cli

import (
	"bytes"
	"strings"
	"testing"
)

// runCLI executes a fresh command tree and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = execute(root, args)
	return out.String(), errOut.String(), err
}

func TestRoot_Help(t *testing.T) {
	out, _, err := runCLI(t)
	if err != nil {
		t.Fatalf("drip error = %v", err)
	}
	for _, want := range []string{"run", "validate", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing subcommand %q", want)
		}
	}
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("drip version error = %v", err)
	}
	if !strings.HasPrefix(out, "drip version "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, errOut, err := runCLI(t, "explode")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Errorf("stderr = %q", errOut)
	}
}
