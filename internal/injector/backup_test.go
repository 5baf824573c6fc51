package injector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMakeAlternateCapturesOriginalOnce(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Foo")
	if err := os.WriteFile(target, []byte("original"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := MakeAlternate(target); err != nil {
		t.Fatalf("MakeAlternate() error = %v", err)
	}
	if !HasAlternate(target) {
		t.Fatal("alternate should exist after MakeAlternate")
	}

	// mutate the target, then back up again; the alternate must still hold
	// the first-ever original
	if err := os.WriteFile(target, []byte("mutated"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := MakeAlternate(target); err != nil {
		t.Fatalf("second MakeAlternate() error = %v", err)
	}
	data, err := os.ReadFile(target + alternateSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("alternate = %q, want %q", data, "original")
	}
}

func TestRestoreAlternate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Foo")
	if err := os.WriteFile(target, []byte("original"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := MakeAlternate(target); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("mutated"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := RestoreAlternate(target); err != nil {
		t.Fatalf("RestoreAlternate() error = %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("restored target = %q, want %q", data, "original")
	}
	if HasAlternate(target) {
		t.Error("alternate should be consumed by restore")
	}
}

func TestRestoreAlternateWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Foo")
	if err := os.WriteFile(target, []byte("pristine"), 0o755); err != nil {
		t.Fatal(err)
	}

	// restoring a never-backed-up target is a successful no-op
	if err := RestoreAlternate(target); err != nil {
		t.Fatalf("RestoreAlternate() error = %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pristine" {
		t.Errorf("target = %q, want untouched %q", data, "pristine")
	}
}

func TestMakeAlternateOfDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Foo.framework")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "Foo"), []byte("original"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := MakeAlternate(target); err != nil {
		t.Fatalf("MakeAlternate() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "Foo"), []byte("mutated"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := RestoreAlternate(target); err != nil {
		t.Fatalf("RestoreAlternate() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(target, "Foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("restored framework executable = %q, want %q", data, "original")
	}
}
