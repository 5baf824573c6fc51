package injector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/82flex/trollpatch/internal/utils"
)

// Game names a supported binary-swap target.
type Game string

const (
	// PUBG swaps the image codec library inside libwebp.framework.
	PUBG Game = "pubg"
	// Crossfire swaps the video library inside PixVideo.framework.
	Crossfire Game = "crossfire"
)

// swapTarget is the fixed framework/binary pair a game's swap operates on.
type swapTarget struct {
	framework string
	binary    string
}

var swapTargets = map[Game]swapTarget{
	PUBG:      {framework: "libwebp.framework", binary: "libwebp"},
	Crossfire: {framework: "PixVideo.framework", binary: "PixVideo"},
}

// Games returns the supported swap games.
func Games() []Game {
	return []Game{PUBG, Crossfire}
}

// ParseGame parses a game name.
func ParseGame(s string) (Game, error) {
	switch Game(s) {
	case PUBG, Crossfire:
		return Game(s), nil
	default:
		return "", fmt.Errorf("unknown game %q; must be one of: pubg, crossfire", s)
	}
}

func (t swapTarget) paths(bundle string) (live, backup string) {
	fwk := filepath.Join(bundle, frameworksDirName, t.framework)
	return filepath.Join(fwk, t.binary), filepath.Join(fwk, t.binary+swapBackupSuffix)
}

// Replace swaps the game's library for newFile. The true original is captured
// exactly once: a second replace overwrites the live binary but never the
// backup. A missing framework directory is a warning, not an error; the
// installed build may simply not ship it.
func (i *Injector) Replace(game Game, newFile string) error {
	target, ok := swapTargets[game]
	if !ok {
		return fmt.Errorf("unknown game %q", game)
	}
	fwk := filepath.Join(i.bundle, frameworksDirName, target.framework)
	if !isDirectory(fwk) {
		log.Warnf("%s not found in %s; nothing to replace", target.framework, filepath.Base(i.bundle))
		return nil
	}
	live, backup := target.paths(i.bundle)

	i.terminateApp()

	// capture the original exactly once
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		if _, err := os.Stat(live); err == nil {
			if err := os.Rename(live, backup); err != nil {
				return fmt.Errorf("failed to back up %s: %w", target.binary, err)
			}
		}
	}

	// clear whatever currently occupies the live path (stale original or a
	// previous swap)
	if _, err := os.Stat(live); err == nil {
		if err := os.Remove(live); err != nil {
			return fmt.Errorf("failed to remove %s: %w", target.binary, err)
		}
	}

	log.Infof("Replacing %s/%s", target.framework, target.binary)
	if err := utils.Cp(newFile, live); err != nil {
		return fmt.Errorf("failed to copy replacement binary: %w", err)
	}
	if err := i.bypassCoreTrust(live); err != nil {
		return err
	}
	return i.transferOwnership(live, false)
}

// Restore puts the game's original library back. No-op when nothing was ever
// swapped.
func (i *Injector) Restore(game Game) error {
	target, ok := swapTargets[game]
	if !ok {
		return fmt.Errorf("unknown game %q", game)
	}
	live, backup := target.paths(i.bundle)
	if _, err := os.Stat(backup); err != nil {
		return nil
	}

	i.terminateApp()

	if _, err := os.Stat(live); err == nil {
		if err := os.Remove(live); err != nil {
			return fmt.Errorf("failed to remove swapped %s: %w", target.binary, err)
		}
	}
	log.Infof("Restoring %s/%s", target.framework, target.binary)
	if err := os.Rename(backup, live); err != nil {
		return fmt.Errorf("failed to restore %s: %w", target.binary, err)
	}
	return i.transferOwnership(live, false)
}

// IsSwapped reports whether the game's library has been replaced, derived
// purely from backup-file presence.
func IsSwapped(game Game, bundle string) bool {
	target, ok := swapTargets[game]
	if !ok {
		return false
	}
	_, backup := target.paths(bundle)
	_, err := os.Stat(backup)
	return err == nil
}
