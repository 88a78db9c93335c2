package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jpe-compiler/internal/ir"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--quiet"))
	err := cmd.Execute()
	return out.String(), err
}

func project(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		path := filepath.Join(root, "src", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestBuildThenHistory(t *testing.T) {
	root := project(t, map[string]string{"buffs.jpe": "[Buff]\nid: glow\ndisplay_name: Glow\nend\n"})
	reportPath := filepath.Join(root, "report.json")

	out, err := run(t, "build", root, "--build-id", "cli-1", "--report", reportPath)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "build cli-1 succeeded") || !strings.Contains(out, "wrote build/buffs.xml") {
		t.Errorf("build output:\n%s", out)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Errorf("report not written: %v", err)
	}

	out, err = run(t, "history", root)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "cli-1") || !strings.Contains(out, "ok") {
		t.Errorf("history output:\n%s", out)
	}
}

func TestBuildFailureExitsNonZero(t *testing.T) {
	root := project(t, map[string]string{"buffs.jpe": "[Buff]\nid: glow\ndisplay_name: Glow\nintensity: 7\nend\n"})
	out, err := run(t, "build", root, "--no-history")
	if !errors.Is(err, errFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "JPE-V003") || !strings.Contains(out, "failed") {
		t.Errorf("output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, ".jpec")); !os.IsNotExist(err) {
		t.Errorf("--no-history still opened the history store")
	}
}

func TestValidateOnlyFailsOnCritical(t *testing.T) {
	root := project(t, map[string]string{"buffs.jpe": "[Buff]\nid: glow\ndisplay_name: Glow\nintensity: 7\nend\n"})
	if _, err := run(t, "validate", root); err != nil {
		t.Errorf("validate with errors only: %v", err)
	}

	dup := "[Buff]\nid: glow\ndisplay_name: Glow\nend\n"
	root = project(t, map[string]string{"a.jpe": dup, "b.jpe": dup})
	if _, err := run(t, "validate", root); !errors.Is(err, errFailed) {
		t.Errorf("validate with a duplicate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "build")); !os.IsNotExist(err) {
		t.Errorf("validate wrote output")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || strings.TrimSpace(out) != "jpec "+Version {
		t.Errorf("version = %q, %v", out, err)
	}
}

func TestDependentsTarget(t *testing.T) {
	tests := []struct {
		in       string
		wantKind ir.Kind
		wantName string
		wantErr  bool
	}{
		{in: "Interaction:greet_neighbor", wantKind: ir.KindInteraction, wantName: "greet_neighbor"},
		{in: "interaction:greet_neighbor", wantKind: ir.KindInteraction, wantName: "greet_neighbor"},
		{in: "buffs: glow", wantKind: ir.KindBuff, wantName: "glow"},
		{in: "loot_action:give", wantKind: ir.KindLootAction, wantName: "give"},
		{in: "test set:is_adult", wantKind: ir.KindTestSet, wantName: "is_adult"},
		{in: "greet_neighbor", wantErr: true},
		{in: "Interaction:", wantErr: true},
		{in: "Widget:x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, name, err := dependentsTarget(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %s:%s", kind, name)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if kind != tt.wantKind || name != tt.wantName {
				t.Errorf("got %s:%s, want %s:%s", kind, name, tt.wantKind, tt.wantName)
			}
		})
	}
}
