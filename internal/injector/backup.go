package injector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/82flex/trollpatch/internal/utils"
)

// MakeAlternate captures an untouched copy of target under the alternate
// suffix. No-op when an alternate already exists, so the alternate always
// reflects the first-ever original, never a previously mutated state.
func MakeAlternate(target string) error {
	if HasAlternate(target) {
		return nil
	}
	if err := utils.Copy(target, target+alternateSuffix); err != nil {
		return fmt.Errorf("failed to back up %s: %w", target, err)
	}
	return nil
}

// RestoreAlternate replaces target with its alternate and removes the
// alternate. Restoring a target that was never backed up is a successful
// no-op: nothing to restore is a valid terminal state for eject flows.
func RestoreAlternate(target string) error {
	if !HasAlternate(target) {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove mutated %s: %w", target, err)
	}
	if err := os.Rename(target+alternateSuffix, target); err != nil {
		return fmt.Errorf("failed to restore %s: %w", target, err)
	}
	log.Debugf("restored %s from alternate", target)
	return nil
}

// HasAlternate reports whether an alternate exists for target.
func HasAlternate(target string) bool {
	_, err := os.Lstat(target + alternateSuffix)
	return err == nil
}

// snapshotTarget copies target aside so a failed operation can put it back
// exactly as it was when the operation started. The snapshot lives next to
// the target so the restore never crosses filesystems.
func snapshotTarget(target string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to snapshot %s: %w", target, err)
	}
	f.Close()
	if err := utils.Cp(target, f.Name()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to snapshot %s: %w", target, err)
	}
	return f.Name(), nil
}

// restoreSnapshot writes the snapshot back over target and removes it.
func restoreSnapshot(target, snapshot string) error {
	if err := utils.Cp(snapshot, target); err != nil {
		return fmt.Errorf("failed to restore %s: %w", target, err)
	}
	return os.Remove(snapshot)
}
