package injector

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const testInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>%s</string>
	<key>CFBundleIdentifier</key>
	<string>%s</string>
</dict>
</plist>
`

// newTestBundle creates a fake .app bundle with an Info.plist, a placeholder
// executable and an empty Frameworks directory.
func newTestBundle(t *testing.T, name, identifier string) string {
	t.Helper()
	bundle := filepath.Join(t.TempDir(), name+".app")
	if err := os.MkdirAll(filepath.Join(bundle, frameworksDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	plistData := fmt.Sprintf(testInfoPlist, name, identifier)
	if err := os.WriteFile(filepath.Join(bundle, infoPlistName), []byte(plistData), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, name), []byte(name+" executable"), 0o755); err != nil {
		t.Fatal(err)
	}
	return bundle
}

// newTestFramework drops a fake framework with an Info.plist and executable
// into the bundle's Frameworks directory.
func newTestFramework(t *testing.T, bundle, name string) string {
	t.Helper()
	fwk := filepath.Join(bundle, frameworksDirName, name+".framework")
	if err := os.MkdirAll(fwk, 0o755); err != nil {
		t.Fatal(err)
	}
	plistData := fmt.Sprintf(testInfoPlist, name, "com.example."+name)
	if err := os.WriteFile(filepath.Join(fwk, infoPlistName), []byte(plistData), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fwk, name), []byte(name+" executable"), 0o755); err != nil {
		t.Fatal(err)
	}
	return fwk
}

// recordingRunner records every helper invocation and optionally fails
// specific helpers.
type recordingRunner struct {
	calls [][]string
	fail  map[string]error
}

func (r *recordingRunner) Run(name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	if err, ok := r.fail[name]; ok {
		return err
	}
	return nil
}

// failAtRunner fails one helper, but only when it is pointed at a specific
// file. Everything else succeeds and is recorded.
type failAtRunner struct {
	recordingRunner
	helper string
	path   string
}

func (r *failAtRunner) Run(name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	if name == r.helper {
		for _, a := range args {
			if a == r.path {
				return fmt.Errorf("%s failed on %s", name, a)
			}
		}
	}
	return nil
}

func (r *recordingRunner) ran(name string) bool {
	for _, call := range r.calls {
		if call[0] == name {
			return true
		}
	}
	return false
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Strategy
		wantErr bool
	}{
		{name: "empty defaults to lexicographic", in: "", want: StrategyLexicographic},
		{name: "lexicographic", in: "lexicographic", want: StrategyLexicographic},
		{name: "fast", in: "fast", want: StrategyFast},
		{name: "preorder", in: "preorder", want: StrategyPreorder},
		{name: "postorder", in: "postorder", want: StrategyPostorder},
		{name: "mixed case", in: "FAST", want: StrategyFast},
		{name: "unknown", in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseGame(t *testing.T) {
	tests := []struct {
		in      string
		want    Game
		wantErr bool
	}{
		{in: "pubg", want: PUBG},
		{in: "crossfire", want: Crossfire},
		{in: "", wantErr: true},
		{in: "fortnite", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGame(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGame(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseGame(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewResolvesIdentifier(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")

	inj, err := New(bundle, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inj.AppID() != "com.example.foo" {
		t.Errorf("AppID() = %q, want %q", inj.AppID(), "com.example.foo")
	}
	if inj.Bundle() != bundle {
		t.Errorf("Bundle() = %q, want %q", inj.Bundle(), bundle)
	}
}

func TestNewRejectsNonBundle(t *testing.T) {
	if _, err := New("/tmp/not-a-bundle", Config{}); err == nil {
		t.Error("New() on a non-bundle path should fail")
	}
}

func TestNewKeepsExplicitAppID(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")

	inj, err := New(bundle, Config{AppID: "com.example.override"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inj.AppID() != "com.example.override" {
		t.Errorf("AppID() = %q, want %q", inj.AppID(), "com.example.override")
	}
}
