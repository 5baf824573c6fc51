package injector

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/apex/log"
	"golang.org/x/sys/unix"
)

// installdUID is the uid/gid of the system installer identity (_installd);
// injected files are chowned to it so they behave like a normal install.
const installdUID = 33

// defaults, overridable through the root command's config
var (
	// CTBypassHelper is the privileged CoreTrust bypass helper binary.
	CTBypassHelper = "ct_bypass"
	// ChownHelper transfers ownership when not running as root.
	ChownHelper = "/usr/sbin/chown"
	// KillallHelper terminates a running app before mutation.
	KillallHelper = "/usr/bin/killall"
)

// CommandRunner runs a privileged helper and converts any non-zero exit or
// uncaught signal into an error. Implementations must never fire-and-forget.
type CommandRunner interface {
	Run(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(unix.WaitStatus); ok && ws.Signaled() {
			return fmt.Errorf("command %s terminated with signal %s", name, ws.Signal())
		}
		return fmt.Errorf("command %s failed with exit code %d: %s", name, exitErr.ExitCode(), out)
	}
	return fmt.Errorf("command %s failed: %v", name, err)
}

// bypassCoreTrust rewrites the binary's code-directory metadata through the
// privileged helper so CoreTrust accepts the modified Mach-O.
func (i *Injector) bypassCoreTrust(machoPath string) error {
	args := []string{"-i", machoPath, "-r"}
	if i.conf.TeamID != "" {
		args = append(args, "-t", i.conf.TeamID)
	}
	if err := i.run.Run(CTBypassHelper, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureBypass, err)
	}
	return nil
}

// transferOwnership chowns path to the installd identity. Runs natively when
// the process is already root, through the privileged helper otherwise.
func (i *Injector) transferOwnership(path string, recursive bool) error {
	if _, isExec := i.run.(execRunner); isExec && unix.Geteuid() == 0 && !recursive {
		if err := unix.Chown(path, installdUID, installdUID); err != nil {
			return fmt.Errorf("%w: chown %s: %v", ErrSignatureBypass, path, err)
		}
		return nil
	}
	args := []string{fmt.Sprintf("%d:%d", installdUID, installdUID), path}
	if recursive {
		args = append([]string{"-R"}, args...)
	}
	if err := i.run.Run(ChownHelper, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureBypass, err)
	}
	return nil
}

// terminateApp best-effort kills the target app before its binary is
// mutated. The app not running is the common case and not an error.
func (i *Injector) terminateApp() {
	machO, err := LocateExecutable(i.bundle)
	if err != nil {
		return
	}
	if err := i.run.Run(KillallHelper, "-9", filepath.Base(machO)); err != nil {
		log.Debugf("app not running: %v", err)
	}
}
