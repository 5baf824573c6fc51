package injector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"

	"github.com/82flex/trollpatch/internal/model"
)

// Eject removes previously injected assets from the bundle. With no explicit
// paths every injected asset is ejected. Load commands are removed before
// the asset files are deleted so a partial failure never leaves load
// commands referencing deleted files.
func (i *Injector) Eject(assetPaths []string) error {
	var names []string
	if len(assetPaths) == 0 {
		for _, path := range InjectedAssets(i.bundle) {
			names = append(names, filepath.Base(path))
		}
	} else {
		for _, path := range assetPaths {
			names = append(names, filepath.Base(path))
		}
	}
	if len(names) == 0 {
		log.Info("Nothing to eject")
		return nil
	}

	i.terminateApp()

	// every executable that may carry a reference: main executable plus all
	// framework Mach-Os
	var carriers []string
	if machO, err := LocateExecutable(i.bundle); err == nil {
		carriers = append(carriers, machO)
	}
	machOs, err := frameworkMachOs(i.bundle, StrategyLexicographic)
	if err != nil {
		return err
	}
	carriers = append(carriers, machOs...)

	frameworks, err := LocateFrameworksDirectory(i.bundle)
	if err != nil {
		return err
	}

	for _, name := range names {
		ref := "@rpath/" + name
		edited := false
		for _, carrier := range carriers {
			if strings.HasPrefix(carrier, filepath.Join(frameworks, name)) {
				continue // the asset's own executable goes away with the file
			}
			dylibs, err := ListDylibs(carrier)
			if err != nil {
				continue // protected or unparseable carriers hold no edits of ours
			}
			found := false
			for _, d := range dylibs {
				if referencesLibrary(d, ref) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
			log.Infof("Removing load command %s from %s", ref, filepath.Base(carrier))
			if err := RemoveDylib(carrier, ref); err != nil {
				return err
			}
			if err := i.bypassCoreTrust(carrier); err != nil {
				return err
			}
			edited = true
		}
		if !edited {
			log.Debugf("no load command found for %s", ref)
		}

		for _, path := range []string{
			filepath.Join(frameworks, name),
			filepath.Join(i.bundle, name), // resource bundles live in the root
		} {
			if _, err := os.Lstat(path); err != nil {
				continue
			}
			log.Infof("Removing %s", name)
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to remove asset %s: %w", name, err)
			}
		}
	}

	// restore any injection target from its alternate once nothing injected
	// remains, so the bundle returns to its exact pre-injection bytes
	if len(InjectedAssets(i.bundle)) == 0 {
		for _, carrier := range carriers {
			if HasAlternate(carrier) {
				if err := RestoreAlternate(carrier); err != nil {
					return err
				}
				if err := i.transferOwnership(carrier, false); err != nil {
					return err
				}
			}
		}
		if err := os.Remove(filepath.Join(i.bundle, injectedMarkerName)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove injected marker: %w", err)
		}
	}

	return i.pruneAssets(assetPaths)
}

// Reapply re-injects every persisted asset recorded for this app, skipping
// records whose files no longer exist on disk.
func (i *Injector) Reapply() error {
	if i.store == nil {
		return fmt.Errorf("no persisted-asset store configured")
	}
	recorded, err := i.store.Assets(i.conf.AppID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Info("No persisted assets for this app")
			return nil
		}
		return err
	}
	var present []string
	for _, path := range recorded {
		if _, err := os.Stat(path); err != nil {
			log.Warnf("Skipping missing persisted asset %s", path)
			continue
		}
		present = append(present, path)
	}
	if len(present) == 0 {
		log.Info("No persisted assets remain on disk")
		return nil
	}
	return i.Inject(present)
}

func (i *Injector) pruneAssets(assetPaths []string) error {
	if i.store == nil {
		return nil
	}
	if err := i.store.Prune(i.conf.AppID, assetPaths); err != nil {
		return fmt.Errorf("failed to prune asset records: %w", err)
	}
	return nil
}
