// Package injector implements the Mach-O injection engine: it rewrites the
// load-command tables of app frameworks to pull in user supplied dylibs,
// frameworks and resource bundles, bypasses CoreTrust enforcement on the
// result, and keeps enough bookkeeping around to undo everything.
package injector

import (
	"fmt"
	"strings"

	"github.com/82flex/trollpatch/internal/db"
)

const (
	infoPlistName      = "Info.plist"
	injectedMarkerName = ".troll-fools"
	alternateSuffix    = ".troll-fools.bak"
	swapBackupSuffix   = ".original"

	frameworksDirName = "Frameworks"

	substrateName    = "CydiaSubstrate"
	substrateFwkName = "CydiaSubstrate.framework"
)

// substrateLoadPath is the canonical in-bundle reference every substrate or
// substitute flavored load command gets rewritten to.
const substrateLoadPath = "@rpath/" + substrateFwkName + "/" + substrateName

// ignoredDylibAndFrameworkNames are substrate/loader shims that are never
// treated as injected assets and never chosen as injection carriers.
var ignoredDylibAndFrameworkNames = map[string]bool{
	"cydiasubstrate":           true,
	"cydiasubstrate.framework": true,
	"ellekit":                  true,
	"ellekit.framework":        true,
	"libsubstrate.dylib":       true,
	"libsubstitute.dylib":      true,
	"libellekit.dylib":         true,
}

// Strategy selects the ordering in which framework executables are tried as
// injection targets. It changes candidate ordering only, never correctness.
type Strategy string

const (
	// StrategyLexicographic enumerates frameworks sorted by filename.
	StrategyLexicographic Strategy = "lexicographic"
	// StrategyFast returns the first structurally eligible candidate without
	// full enumeration, trading determinism for speed.
	StrategyFast Strategy = "fast"
	// StrategyPreorder walks the Frameworks directory preorder.
	StrategyPreorder Strategy = "preorder"
	// StrategyPostorder walks the Frameworks directory postorder.
	StrategyPostorder Strategy = "postorder"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyLexicographic, StrategyFast, StrategyPreorder, StrategyPostorder:
		return Strategy(strings.ToLower(s)), nil
	case "":
		return StrategyLexicographic, nil
	default:
		return "", fmt.Errorf("unknown strategy %q; must be one of: lexicographic, fast, preorder, postorder", s)
	}
}

// Config holds the per-operation injection options.
type Config struct {
	// AppID is the target app's bundle identifier; read from the bundle's
	// Info.plist when empty.
	AppID string
	// TeamID is the signing team identifier passed to the CoreTrust helper.
	TeamID string
	// UseWeakReference inserts LC_LOAD_WEAK_DYLIB instead of LC_LOAD_DYLIB.
	UseWeakReference bool
	// PreferMainExecutable tries the app's main executable before any
	// framework.
	PreferMainExecutable bool
	// Strategy selects target candidate ordering.
	Strategy Strategy
	// Persist records injected asset paths in the store on success.
	Persist bool
}

// Injector mutates exactly one app bundle. Callers must serialize all
// mutating calls per bundle; the backup-then-mutate sequence is not safe
// under concurrent execution on the same bundle.
type Injector struct {
	bundle string
	conf   Config

	run   CommandRunner
	store db.Database
}

// Option customizes an Injector.
type Option func(*Injector)

// WithCommandRunner substitutes the privileged command runner (tests).
func WithCommandRunner(r CommandRunner) Option {
	return func(i *Injector) { i.run = r }
}

// WithStore attaches a persisted-asset store.
func WithStore(s db.Database) Option {
	return func(i *Injector) { i.store = s }
}

// New creates an Injector for one app bundle. The bundle identifier is
// resolved from the bundle manifest unless conf.AppID is set.
func New(bundlePath string, conf Config, opts ...Option) (*Injector, error) {
	if !IsBundle(bundlePath) {
		return nil, fmt.Errorf("%w: %s is not an app/framework/bundle path", ErrBundleMetadata, bundlePath)
	}
	if conf.Strategy == "" {
		conf.Strategy = StrategyLexicographic
	}
	i := &Injector{
		bundle: bundlePath,
		conf:   conf,
		run:    execRunner{},
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.conf.AppID == "" {
		id, err := Identifier(bundlePath)
		if err != nil {
			return nil, err
		}
		i.conf.AppID = id
	}
	return i, nil
}

// Bundle returns the app bundle root this injector operates on.
func (i *Injector) Bundle() string { return i.bundle }

// AppID returns the resolved bundle identifier.
func (i *Injector) AppID() string { return i.conf.AppID }
