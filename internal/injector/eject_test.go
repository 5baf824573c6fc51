package injector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/82flex/trollpatch/internal/db"
	"github.com/82flex/trollpatch/internal/model"
)

func TestEjectNothingToDo(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.Eject(nil); err != nil {
		t.Errorf("Eject() on a clean bundle error = %v", err)
	}
	if len(run.calls) != 0 {
		t.Errorf("no helpers should run when there is nothing to eject, got %v", run.calls)
	}
}

func TestEjectRemovesAssetFiles(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	frameworks := filepath.Join(bundle, frameworksDirName)

	// a previously injected dylib whose carrier executables are gone or
	// unparseable; eject must still remove the files
	dylib := filepath.Join(frameworks, "tweak.dylib")
	if err := os.WriteFile(dylib, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}
	if err := inj.MarkInjected(bundle); err != nil {
		t.Fatal(err)
	}

	if err := inj.Eject(nil); err != nil {
		t.Fatalf("Eject() error = %v", err)
	}
	if _, err := os.Stat(dylib); !os.IsNotExist(err) {
		t.Error("ejected dylib should be removed from Frameworks")
	}
	if IsInjectedBundle(bundle) {
		t.Error("marker should be removed once nothing injected remains")
	}
}

func TestEjectPrunesStore(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	frameworks := filepath.Join(bundle, frameworksDirName)

	srcA := "/tmp/src/a.dylib"
	srcB := "/tmp/src/b.dylib"
	for _, name := range []string{"a.dylib", "b.dylib"} {
		if err := os.WriteFile(filepath.Join(frameworks, name), []byte("x"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	store, _ := db.NewInMemory()
	if err := store.SaveAssets("com.example.foo", []string{srcA, srcB}); err != nil {
		t.Fatal(err)
	}

	inj, err := New(bundle, Config{Persist: true}, WithCommandRunner(&recordingRunner{}), WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	// partial eject drops only the named record
	if err := inj.Eject([]string{srcA}); err != nil {
		t.Fatalf("Eject() error = %v", err)
	}
	paths, err := store.Assets("com.example.foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != srcB {
		t.Errorf("store after partial eject = %v, want [%s]", paths, srcB)
	}

	// full eject drops the whole record
	if err := inj.Eject(nil); err != nil {
		t.Fatalf("full Eject() error = %v", err)
	}
	if _, err := store.Assets("com.example.foo"); err != model.ErrNotFound {
		t.Errorf("store after full eject error = %v, want ErrNotFound", err)
	}
}
