package injector

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/82flex/trollpatch/internal/db"
)

// skipIfNoTestApp skips tests that need a real installed app bundle with
// valid Mach-O executables. Point TROLLPATCH_TEST_APP at a disposable .app
// copy to run them.
func skipIfNoTestApp(t *testing.T) string {
	t.Helper()
	app := os.Getenv("TROLLPATCH_TEST_APP")
	if app == "" {
		t.Skip("TROLLPATCH_TEST_APP not set, skipping Mach-O surgery test")
	}
	return app
}

func TestInjectRejectsUnsupportedAssets(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.Inject([]string{"archive.zip"}); !errors.Is(err, ErrUnsupportedAsset) {
		t.Errorf("Inject() error = %v, want ErrUnsupportedAsset", err)
	}
	// rejection must happen before any mutation
	if len(InjectedAssets(bundle)) != 0 {
		t.Error("bundle must stay untouched after asset rejection")
	}
}

func TestInjectNoEligibleTarget(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	// frameworks whose executables are not parseable Mach-Os count as
	// protected, so nothing is eligible
	newTestFramework(t, bundle, "Alpha")
	newTestFramework(t, bundle, "Beta")

	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := inj.selectTarget(); !errors.Is(err, ErrNoEligibleFramework) {
		t.Errorf("selectTarget() error = %v, want ErrNoEligibleFramework", err)
	}
}

func hasDylib(t *testing.T, machO, ref string) bool {
	t.Helper()
	dylibs, err := ListDylibs(machO)
	if err != nil {
		t.Fatalf("ListDylibs(%s) error = %v", machO, err)
	}
	for _, d := range dylibs {
		if d == ref {
			return true
		}
	}
	return false
}

func TestSelectTargetSkipsSealedCandidates(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	// Alpha and Beta have no load-command headroom, only Zulu is editable
	for _, f := range []struct {
		name  string
		roomy bool
	}{
		{name: "Alpha"}, {name: "Beta"}, {name: "Zulu", roomy: true},
	} {
		fwk := newTestFramework(t, bundle, f.name)
		writeMachO(t, filepath.Join(fwk, f.name), f.roomy)
	}

	inj, err := New(bundle, Config{}, WithCommandRunner(&recordingRunner{}))
	if err != nil {
		t.Fatal(err)
	}

	target, err := inj.selectTarget()
	if err != nil {
		t.Fatalf("selectTarget() error = %v", err)
	}
	if filepath.Base(target) != "Zulu" {
		t.Errorf("selectTarget() = %s, want the Zulu executable", target)
	}
}

func TestInjectRollbackKeepsEarlierInjection(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	fwk := newTestFramework(t, bundle, "Alpha")
	target := filepath.Join(fwk, "Alpha")
	writeMachO(t, target, true)

	src := t.TempDir()
	first := filepath.Join(src, "a.dylib")
	second := filepath.Join(src, "b.dylib")
	writeMachO(t, first, true)
	writeMachO(t, second, true)

	inj, err := New(bundle, Config{}, WithCommandRunner(&recordingRunner{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := inj.Inject([]string{first}); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	if !hasDylib(t, target, "@rpath/a.dylib") {
		t.Fatal("first injection should add @rpath/a.dylib")
	}

	// the second injection dies while bypass-signing the target; the target
	// must come back with the first injection intact, not pristine
	inj, err = New(bundle, Config{},
		WithCommandRunner(&failAtRunner{helper: CTBypassHelper, path: target}))
	if err != nil {
		t.Fatal(err)
	}
	if err := inj.Inject([]string{second}); err == nil {
		t.Fatal("Inject() should fail when the target cannot be bypass-signed")
	}

	if !hasDylib(t, target, "@rpath/a.dylib") {
		t.Error("earlier injection must survive a failed later injection")
	}
	if hasDylib(t, target, "@rpath/b.dylib") {
		t.Error("failed injection must not leave its load command behind")
	}
	if _, err := os.Stat(filepath.Join(bundle, frameworksDirName, "b.dylib")); !os.IsNotExist(err) {
		t.Error("failed injection must not leave its asset behind")
	}
	if _, err := os.Stat(filepath.Join(bundle, frameworksDirName, "a.dylib")); err != nil {
		t.Errorf("earlier asset must stay in Frameworks: %v", err)
	}
	if !HasAlternate(target) {
		t.Error("the first-ever original must stay available for eject")
	}
}

func TestInjectFailureLeavesNoAlternate(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	fwk := newTestFramework(t, bundle, "Alpha")
	target := filepath.Join(fwk, "Alpha")
	writeMachO(t, target, true)
	before, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	dylib := filepath.Join(t.TempDir(), "a.dylib")
	writeMachO(t, dylib, true)

	inj, err := New(bundle, Config{},
		WithCommandRunner(&failAtRunner{helper: CTBypassHelper, path: target}))
	if err != nil {
		t.Fatal(err)
	}
	if err := inj.Inject([]string{dylib}); err == nil {
		t.Fatal("Inject() should fail when the target cannot be bypass-signed")
	}

	if HasAlternate(target) {
		t.Error("a never-injected target must not keep an alternate")
	}
	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target must be byte-identical after a failed first injection")
	}
	if IsInjectedBundle(bundle) {
		t.Error("failed injection must not mark the bundle")
	}
	entries, err := os.ReadDir(fwk)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 { // Info.plist and the executable
		t.Errorf("framework has %d entries after rollback, want 2", len(entries))
	}
}

func TestInjectNoFrameworksDirRestoresTarget(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	if err := os.RemoveAll(filepath.Join(bundle, frameworksDirName)); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(bundle, "Foo")
	writeMachO(t, target, true)
	before, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	dylib := filepath.Join(t.TempDir(), "a.dylib")
	writeMachO(t, dylib, true)

	inj, err := New(bundle, Config{PreferMainExecutable: true},
		WithCommandRunner(&recordingRunner{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := inj.Inject([]string{dylib}); !errors.Is(err, ErrBundleMetadata) {
		t.Fatalf("Inject() without a Frameworks directory error = %v, want ErrBundleMetadata", err)
	}

	if HasAlternate(target) {
		t.Error("aborted injection must not keep an alternate")
	}
	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target must be byte-identical after an aborted injection")
	}
}

func TestInjectResourceBundleOnly(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{}
	store, _ := db.NewInMemory()
	inj, err := New(bundle, Config{Persist: true}, WithCommandRunner(run), WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "Assets.bundle")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "icon.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := inj.Inject([]string{src}); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}

	// bundle copied into the app root, no Mach-O surgery needed
	if _, err := os.Stat(filepath.Join(bundle, "Assets.bundle", "icon.png")); err != nil {
		t.Errorf("resource bundle not copied: %v", err)
	}
	if !IsInjectedBundle(bundle) {
		t.Error("bundle should carry the injected marker")
	}
	if run.ran(CTBypassHelper) {
		t.Error("resource bundles must not be bypass-signed")
	}

	paths, err := store.Assets("com.example.foo")
	if err != nil {
		t.Fatalf("Assets() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != src {
		t.Errorf("persisted assets = %v, want [%s]", paths, src)
	}
}

func TestReapplySkipsMissingAssets(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	store, _ := db.NewInMemory()
	if err := store.SaveAssets("com.example.foo", []string{"/nonexistent/tweak.dylib"}); err != nil {
		t.Fatal(err)
	}

	inj, err := New(bundle, Config{Persist: true}, WithCommandRunner(&recordingRunner{}), WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	// the only recorded asset is gone from disk; reapply has nothing to do
	// and must not fail
	if err := inj.Reapply(); err != nil {
		t.Errorf("Reapply() error = %v", err)
	}
}

func TestReapplyWithoutRecords(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	store, _ := db.NewInMemory()

	inj, err := New(bundle, Config{Persist: true}, WithCommandRunner(&recordingRunner{}), WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.Reapply(); err != nil {
		t.Errorf("Reapply() with no records error = %v", err)
	}
}

func TestInjectRoundTrip(t *testing.T) {
	app := skipIfNoTestApp(t)
	dylib := os.Getenv("TROLLPATCH_TEST_DYLIB")
	if dylib == "" {
		t.Skip("TROLLPATCH_TEST_DYLIB not set")
	}

	run := &recordingRunner{}
	inj, err := New(app, Config{PreferMainExecutable: true}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.Inject([]string{dylib}); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	if !IsInjectedBundle(app) {
		t.Error("app should be marked injected")
	}
	if len(InjectedAssets(app)) == 0 {
		t.Error("injected asset should be present in Frameworks")
	}

	machO, err := LocateExecutable(app)
	if err != nil {
		t.Fatal(err)
	}
	dylibs, err := ListDylibs(machO)
	if err != nil {
		t.Fatal(err)
	}
	ref := loadCommandNameOfAsset(dylib)
	found := false
	for _, d := range dylibs {
		if d == ref {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("load command %s missing from %s", ref, machO)
	}

	if err := inj.Eject(nil); err != nil {
		t.Fatalf("Eject() error = %v", err)
	}
	if IsInjectedBundle(app) {
		t.Error("marker should be gone after full eject")
	}
	if len(InjectedAssets(app)) != 0 {
		t.Error("no injected assets should remain after full eject")
	}
}
