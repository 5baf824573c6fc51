package injector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/82flex/trollpatch/internal/utils"
)

// executableRpath lets injected @rpath references resolve from the app's
// Frameworks directory.
const executableRpath = "@executable_path/Frameworks"

// Inject injects the given asset paths (dylib/framework/bundle) into the app
// bundle. On any failure after mutation starts, the bundle is rolled back to
// its pre-injection state and the original error is returned.
func (i *Injector) Inject(assetPaths []string) error {
	// 1. classify; reject anything unsupported before touching the bundle
	assets, err := ClassifyAssets(assetPaths)
	if err != nil {
		return err
	}

	// 2. never mutate a running app
	i.terminateApp()

	var machOAssets []Asset
	var copied []string // paths inside the bundle, removed on rollback

	rollback := func() {
		for _, path := range copied {
			if err := os.RemoveAll(path); err != nil {
				log.WithError(err).Warnf("rollback: failed to remove %s", path)
			}
		}
	}

	// 3. resource bundles are copied straight into the bundle root
	for _, asset := range assets {
		if asset.Kind != AssetResourceBundle {
			machOAssets = append(machOAssets, asset)
			continue
		}
		dest := filepath.Join(i.bundle, filepath.Base(asset.Path))
		log.Infof("Copying resource bundle %s", filepath.Base(asset.Path))
		if err := utils.Copy(asset.Path, dest); err != nil {
			rollback()
			return fmt.Errorf("failed to copy resource bundle: %w", err)
		}
		copied = append(copied, dest)
		if err := i.transferOwnership(dest, true); err != nil {
			rollback()
			return err
		}
	}

	if len(machOAssets) == 0 {
		if err := i.persistAssets(assetPaths); err != nil {
			return err
		}
		return i.MarkInjected(i.bundle)
	}

	// 4. canonicalize the assets' own substrate references, bypass-sign them
	for _, asset := range machOAssets {
		if err := i.preprocessAsset(asset); err != nil {
			rollback()
			return err
		}
	}

	// 5. pick the injection target
	target, err := i.selectTarget()
	if err != nil {
		rollback()
		return err
	}
	log.Infof("Injecting into %s", filepath.Base(target))

	// 6. capture the target before its first write. The alternate keeps the
	// first-ever original for eject; the snapshot keeps this operation's
	// starting state, which may already carry earlier injections.
	hadAlternate := HasAlternate(target)
	snapshot, err := snapshotTarget(target)
	if err != nil {
		rollback()
		return err
	}
	undoTarget := func() {
		if rerr := restoreSnapshot(target, snapshot); rerr != nil {
			log.WithError(rerr).Warnf("rollback: failed to restore %s", target)
		}
		if !hadAlternate {
			if rerr := os.RemoveAll(target + alternateSuffix); rerr != nil {
				log.WithError(rerr).Warn("rollback: failed to remove alternate")
			}
		}
	}

	if err := MakeAlternate(target); err != nil {
		undoTarget()
		rollback()
		return err
	}

	frameworks, err := LocateFrameworksDirectory(i.bundle)
	if err != nil {
		undoTarget()
		rollback()
		return err
	}

	// 7. copy assets in, add load commands; restore the target on failure
	if err := i.injectInto(target, frameworks, machOAssets, &copied); err != nil {
		undoTarget()
		rollback()
		return err
	}
	if err := os.Remove(snapshot); err != nil {
		log.WithError(err).Warn("failed to remove target snapshot")
	}

	// 8. persist for re-application after app updates
	if err := i.persistAssets(assetPaths); err != nil {
		return err
	}

	// 9. advisory marker
	return i.MarkInjected(i.bundle)
}

// injectInto performs the load-command surgery for every Mach-O asset
// against one chosen target executable.
func (i *Injector) injectInto(target, frameworks string, assets []Asset, copied *[]string) error {
	for _, asset := range assets {
		dest := filepath.Join(frameworks, filepath.Base(asset.Path))
		log.Infof("Copying %s into Frameworks", filepath.Base(asset.Path))
		if err := utils.Copy(asset.Path, dest); err != nil {
			return fmt.Errorf("failed to copy asset: %w", err)
		}
		*copied = append(*copied, dest)
		if err := i.transferOwnership(dest, true); err != nil {
			return err
		}

		name := loadCommandNameOfAsset(asset.Path)
		if err := InsertRpath(target, executableRpath); err != nil {
			return err
		}
		// a stale reference to the same library under another path would
		// shadow the one we are about to add
		if err := RewriteDylib(target, filepath.Base(name), name); err != nil {
			return err
		}
		if err := InsertDylib(target, name, i.conf.UseWeakReference); err != nil {
			return err
		}
	}
	if err := i.bypassCoreTrust(target); err != nil {
		return err
	}
	return i.transferOwnership(target, false)
}

// selectTarget picks the Mach-O that will carry the new load commands: the
// first candidate, in strategy order, that is not signature-protected.
func (i *Injector) selectTarget() (string, error) {
	var candidates []string
	if i.conf.PreferMainExecutable {
		if machO, err := LocateExecutable(i.bundle); err == nil {
			candidates = append(candidates, machO)
		}
	}
	machOs, err := frameworkMachOs(i.bundle, i.conf.Strategy)
	if err != nil {
		return "", err
	}
	candidates = append(candidates, machOs...)
	if len(candidates) == 0 {
		return "", ErrNoEligibleFramework
	}
	for _, machO := range candidates {
		if IsProtected(machO) {
			log.Debugf("skipping protected candidate %s", filepath.Base(machO))
			continue
		}
		return machO, nil
	}
	return "", ErrNoEligibleFramework
}

func (i *Injector) persistAssets(assetPaths []string) error {
	if !i.conf.Persist || i.store == nil {
		return nil
	}
	if err := i.store.SaveAssets(i.conf.AppID, utils.Unique(assetPaths)); err != nil {
		return fmt.Errorf("failed to persist asset records: %w", err)
	}
	return nil
}
