package injector

import (
	"os"
	"path/filepath"
	"testing"
)

func newSwapBundle(t *testing.T, game Game) (*Injector, *recordingRunner, string) {
	t.Helper()
	bundle := newTestBundle(t, "Game", "com.example.game")
	target := swapTargets[game]
	fwk := filepath.Join(bundle, frameworksDirName, target.framework)
	if err := os.MkdirAll(fwk, 0o755); err != nil {
		t.Fatal(err)
	}
	live := filepath.Join(fwk, target.binary)
	if err := os.WriteFile(live, []byte("original"), 0o755); err != nil {
		t.Fatal(err)
	}
	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}
	return inj, run, bundle
}

func TestReplaceAndRestore(t *testing.T) {
	inj, run, bundle := newSwapBundle(t, PUBG)
	live, backup := swapTargets[PUBG].paths(bundle)

	patched := filepath.Join(t.TempDir(), "libwebp.patched")
	if err := os.WriteFile(patched, []byte("patched"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := inj.Replace(PUBG, patched); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	data, err := os.ReadFile(live)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "patched" {
		t.Errorf("live binary = %q, want %q", data, "patched")
	}
	data, err = os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("backup = %q, want %q", data, "original")
	}
	if !IsSwapped(PUBG, bundle) {
		t.Error("IsSwapped() = false after Replace")
	}
	if !run.ran(CTBypassHelper) {
		t.Error("Replace should bypass-sign the replacement binary")
	}

	if err := inj.Restore(PUBG); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	data, err = os.ReadFile(live)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("restored binary = %q, want %q", data, "original")
	}
	if IsSwapped(PUBG, bundle) {
		t.Error("IsSwapped() = true after Restore")
	}
}

func TestReplaceNeverOverwritesBackup(t *testing.T) {
	inj, _, bundle := newSwapBundle(t, Crossfire)
	_, backup := swapTargets[Crossfire].paths(bundle)

	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	if err := os.WriteFile(first, []byte("first"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("second"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := inj.Replace(Crossfire, first); err != nil {
		t.Fatalf("first Replace() error = %v", err)
	}
	if err := inj.Replace(Crossfire, second); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}

	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("backup after double replace = %q, want the true original", data)
	}
}

func TestReplaceMissingFramework(t *testing.T) {
	bundle := newTestBundle(t, "Game", "com.example.game")
	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	// the installed build does not ship the framework; that is a warning,
	// not an error
	if err := inj.Replace(PUBG, "/nonexistent"); err != nil {
		t.Errorf("Replace() on a bundle without the framework = %v, want nil", err)
	}
	if IsSwapped(PUBG, bundle) {
		t.Error("nothing should be marked swapped")
	}
}

func TestRestoreWithoutSwap(t *testing.T) {
	inj, _, bundle := newSwapBundle(t, PUBG)
	live, _ := swapTargets[PUBG].paths(bundle)

	if err := inj.Restore(PUBG); err != nil {
		t.Fatalf("Restore() without prior swap error = %v", err)
	}
	data, err := os.ReadFile(live)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("binary = %q, want untouched %q", data, "original")
	}
}
