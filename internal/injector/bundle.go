package injector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/82flex/trollpatch/internal/utils"
	"github.com/82flex/trollpatch/pkg/plist"
)

var bundleExtensions = []string{".app", ".framework", ".bundle", ".xctest"}

// IsBundle reports whether path names a bundle-like package. Pure extension
// check, no I/O.
func IsBundle(path string) bool {
	return utils.StrSliceHas(bundleExtensions, filepath.Ext(path))
}

func isDirectory(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// IsEligibleAppBundle reports whether path is a bundle with a non-empty
// Frameworks directory, i.e. whether it can carry an injection at all.
func IsEligibleAppBundle(path string) bool {
	if !IsBundle(path) {
		return false
	}
	entries, err := os.ReadDir(filepath.Join(path, frameworksDirName))
	return err == nil && len(entries) > 0
}

// LocateExecutable returns the executable path declared by the bundle's
// Info.plist.
func LocateExecutable(bundle string) (string, error) {
	info, err := plist.AppInfoFromBundle(bundle)
	if err != nil {
		return "", fmt.Errorf("%w: failed to locate executable in bundle %s: %v", ErrBundleMetadata, filepath.Base(bundle), err)
	}
	if info.CFBundleExecutable == "" {
		return "", fmt.Errorf("%w: no CFBundleExecutable in bundle %s", ErrBundleMetadata, filepath.Base(bundle))
	}
	return filepath.Join(bundle, info.CFBundleExecutable), nil
}

// LocateFrameworksDirectory returns the bundle's Frameworks directory.
func LocateFrameworksDirectory(bundle string) (string, error) {
	frameworks := filepath.Join(bundle, frameworksDirName)
	if !isDirectory(frameworks) {
		return "", fmt.Errorf("%w: no Frameworks directory in bundle %s", ErrBundleMetadata, filepath.Base(bundle))
	}
	return frameworks, nil
}

// Identifier returns the bundle's stable identifier from its Info.plist.
func Identifier(bundle string) (string, error) {
	info, err := plist.AppInfoFromBundle(bundle)
	if err != nil {
		return "", fmt.Errorf("%w: failed to retrieve identifier of bundle %s: %v", ErrBundleMetadata, filepath.Base(bundle), err)
	}
	if info.CFBundleIdentifier == "" {
		return "", fmt.Errorf("%w: no CFBundleIdentifier in bundle %s", ErrBundleMetadata, filepath.Base(bundle))
	}
	return info.CFBundleIdentifier, nil
}

// loadCommandNameOfAsset is the canonical @rpath reference for an asset.
func loadCommandNameOfAsset(assetPath string) string {
	return "@rpath/" + filepath.Base(assetPath)
}

// InjectedAssets lists the non-ignored asset files currently present in the
// bundle's Frameworks directory, sorted by filename.
func InjectedAssets(bundle string) []string {
	if !IsBundle(bundle) {
		return nil
	}
	frameworks := filepath.Join(bundle, frameworksDirName)
	if !isDirectory(frameworks) {
		return nil
	}
	entries, err := os.ReadDir(frameworks)
	if err != nil {
		return nil
	}
	var assets []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		ext := filepath.Ext(name)
		validType := ext == ".dylib" || ext == ".deb" || ext == ".bundle" || ext == ".framework"
		if validType && !ignoredDylibAndFrameworkNames[name] {
			assets = append(assets, filepath.Join(frameworks, e.Name()))
		}
	}
	sort.Strings(assets)
	return assets
}

// frameworkMachOs enumerates executables of the bundle's embedded frameworks
// in strategy order. Frameworks without a resolvable executable are skipped.
func frameworkMachOs(bundle string, strategy Strategy) ([]string, error) {
	if !IsBundle(bundle) {
		return nil, nil
	}
	frameworks := filepath.Join(bundle, frameworksDirName)
	if !isDirectory(frameworks) {
		return nil, nil
	}

	switch strategy {
	case StrategyPreorder, StrategyPostorder:
		var machOs []string
		err := filepath.WalkDir(frameworks, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() || !IsBundle(path) {
				return err
			}
			if ignoredDylibAndFrameworkNames[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			if machO, err := LocateExecutable(path); err == nil {
				machOs = append(machOs, machO)
			}
			return filepath.SkipDir // no nested frameworks on iOS
		})
		if err != nil {
			return nil, err
		}
		if strategy == StrategyPostorder {
			for i, j := 0, len(machOs)-1; i < j; i, j = i+1, j-1 {
				machOs[i], machOs[j] = machOs[j], machOs[i]
			}
		}
		return machOs, nil
	default: // lexicographic and fast share the readdir order
		entries, err := os.ReadDir(frameworks)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() && IsBundle(e.Name()) && !ignoredDylibAndFrameworkNames[strings.ToLower(e.Name())] {
				names = append(names, e.Name())
			}
		}
		if strategy != StrategyFast {
			// fast keeps raw readdir order, trading determinism for speed
			sort.Strings(names)
		}
		var machOs []string
		for _, name := range names {
			if machO, err := LocateExecutable(filepath.Join(frameworks, name)); err == nil {
				machOs = append(machOs, machO)
			}
		}
		return machOs, nil
	}
}

// MarkInjected drops the zero-byte injected marker into each bundle. The
// marker is advisory; it is never removed except by an explicit eject.
func (i *Injector) MarkInjected(bundles ...string) error {
	for _, bundle := range bundles {
		if !IsBundle(bundle) {
			continue
		}
		marker := filepath.Join(bundle, injectedMarkerName)
		if _, err := os.Stat(marker); err == nil {
			continue
		}
		f, err := os.Create(marker)
		if err != nil {
			return fmt.Errorf("failed to create injected marker: %w", err)
		}
		f.Close()
	}
	return nil
}

// IsInjectedBundle reports whether the injected marker is present.
func IsInjectedBundle(bundle string) bool {
	if !IsBundle(bundle) {
		return false
	}
	_, err := os.Stat(filepath.Join(bundle, injectedMarkerName))
	return err == nil
}

// HasInjectedAsset reports whether the app carries any injected asset or any
// swapped game binary. The predicate is a logical OR across both subsystems
// since they share one bundle.
func HasInjectedAsset(bundle string) bool {
	if len(InjectedAssets(bundle)) > 0 {
		return true
	}
	for _, game := range Games() {
		if IsSwapped(game, bundle) {
			return true
		}
	}
	return false
}
