package injector

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/pkg/codesign"
	cstypes "github.com/blacktop/go-macho/pkg/codesign/types"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

var dylibLoadCommands = []string{
	"LC_LOAD_DYLIB",
	"LC_LOAD_WEAK_DYLIB",
	"LC_REEXPORT_DYLIB",
	"LC_LAZY_LOAD_DYLIB",
	"LC_LOAD_UPWARD_DYLIB",
}

func pointerAlign(sz uint32) uint32 {
	if (sz % 8) != 0 {
		sz += 8 - (sz % 8)
	}
	return sz
}

// dylibName extracts the referenced path from any dylib flavored load command.
func dylibName(lc macho.Load) (string, bool) {
	switch c := lc.(type) {
	case *macho.Dylib:
		return c.Name, true
	case *macho.LoadDylib:
		return c.Name, true
	case *macho.WeakDylib:
		return c.Name, true
	case *macho.ReExportDylib:
		return c.Name, true
	case *macho.LazyLoadDylib:
		return c.Name, true
	case *macho.UpwardDylib:
		return c.Name, true
	default:
		return "", false
	}
}

// setDylibName rewrites a dylib load command's path string in place, fixing
// up the command length and the header's size-of-commands.
func setDylibName(m *macho.File, lc macho.Load, name string) bool {
	newLen := pointerAlign(uint32(binary.Size(types.DylibCmd{}) + len(name) + 1))
	switch c := lc.(type) {
	case *macho.Dylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	case *macho.LoadDylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	case *macho.WeakDylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	case *macho.ReExportDylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	case *macho.LazyLoadDylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	case *macho.UpwardDylib:
		prevLen := int32(c.Len)
		c.Len = newLen
		c.Name = name
		m.ModifySizeCommands(prevLen, int32(c.Len))
	default:
		return false
	}
	return true
}

// ListDylibs returns the dynamic-library paths referenced by the Mach-O's
// load commands, in file order. For universal binaries the first slice wins.
func ListDylibs(machoPath string) ([]string, error) {
	var paths []string
	if err := readMachO(machoPath, func(m *macho.File) error {
		paths = paths[:0]
		for _, lc := range m.Loads {
			if name, ok := dylibName(lc); ok {
				paths = append(paths, name)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return paths, nil
}

// ListRpaths returns the runtime search paths of the Mach-O.
func ListRpaths(machoPath string) ([]string, error) {
	var paths []string
	if err := readMachO(machoPath, func(m *macho.File) error {
		paths = paths[:0]
		for _, lc := range m.GetLoadsByName("LC_RPATH") {
			if rp, ok := lc.(*macho.Rpath); ok {
				paths = append(paths, rp.Path)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return paths, nil
}

// InsertDylib appends a dylib load command referencing name. No-op when an
// equal reference already exists.
func InsertDylib(machoPath, name string, weak bool) error {
	lc := types.LC_LOAD_DYLIB
	if weak {
		lc = types.LC_LOAD_WEAK_DYLIB
	}
	return patchMachO(machoPath, func(m *macho.File) error {
		for _, l := range m.Loads {
			if existing, ok := dylibName(l); ok && existing == name {
				return nil
			}
		}
		if isSliceProtected(m) {
			return fmt.Errorf("load commands are sealed against edits")
		}
		log.Debugf("adding %s %s to %s", lc, name, machoPath)
		m.AddLoad(&macho.Dylib{
			DylibCmd: types.DylibCmd{
				LoadCmd:        lc,
				Len:            pointerAlign(uint32(binary.Size(types.DylibCmd{}) + len(name) + 1)),
				NameOffset:     0x18,
				Timestamp:      2,
				CurrentVersion: types.Version(0x10000),
				CompatVersion:  types.Version(0x10000),
			},
			Name: name,
		})
		return nil
	})
}

// InsertRpath ensures an LC_RPATH entry for path exists. Idempotent.
func InsertRpath(machoPath, path string) error {
	return patchMachO(machoPath, func(m *macho.File) error {
		for _, lc := range m.GetLoadsByName("LC_RPATH") {
			if rp, ok := lc.(*macho.Rpath); ok && rp.Path == path {
				return nil
			}
		}
		if isSliceProtected(m) {
			return fmt.Errorf("load commands are sealed against edits")
		}
		log.Debugf("adding LC_RPATH %s to %s", path, machoPath)
		m.AddLoad(&macho.Rpath{
			RpathCmd: types.RpathCmd{
				LoadCmd:    types.LC_RPATH,
				Len:        pointerAlign(uint32(binary.Size(types.RpathCmd{}) + len(path) + 1)),
				PathOffset: 0xC,
			},
			Path: path,
		})
		return nil
	})
}

// RewriteDylib changes every dylib load command matching from so that it
// references to instead. match may be the exact path or a basename.
func RewriteDylib(machoPath, from, to string) error {
	return patchMachO(machoPath, func(m *macho.File) error {
		for _, lc := range m.Loads {
			name, ok := dylibName(lc)
			if !ok || !referencesLibrary(name, from) {
				continue
			}
			if isSliceProtected(m) {
				return fmt.Errorf("load commands are sealed against edits")
			}
			log.Debugf("rewriting load command %s -> %s in %s", name, to, machoPath)
			setDylibName(m, lc, to)
		}
		return nil
	})
}

// RemoveDylib removes every dylib load command referencing name.
func RemoveDylib(machoPath, name string) error {
	return patchMachO(machoPath, func(m *macho.File) error {
		for _, lcName := range dylibLoadCommands {
			for _, lc := range m.GetLoadsByName(lcName) {
				if existing, ok := dylibName(lc); ok && referencesLibrary(existing, name) {
					if err := m.RemoveLoad(lc); err != nil {
						return fmt.Errorf("failed to remove load command %s: %v", existing, err)
					}
				}
			}
		}
		return nil
	})
}

// referencesLibrary reports whether a load-command path refers to the given
// library, either exactly or by trailing path components.
func referencesLibrary(lcPath, lib string) bool {
	if lcPath == lib {
		return true
	}
	return strings.HasSuffix(lcPath, "/"+strings.TrimPrefix(lib, "@rpath/"))
}

// IsProtected reports whether the binary's existing signature configuration
// prevents in-place load-command edits: FairPlay encrypted, LC_CODE_SIGNATURE
// not in final position, or no headroom left between the load commands and
// the first section's file data.
func IsProtected(machoPath string) bool {
	protected := false
	if err := readMachO(machoPath, func(m *macho.File) error {
		if isSliceProtected(m) {
			protected = true
		}
		return nil
	}); err != nil {
		return true // unparseable counts as protected, callers skip it
	}
	return protected
}

func isSliceProtected(m *macho.File) bool {
	// FairPlay encrypted binaries cannot be edited in place
	if infos := m.GetLoadsByName("LC_ENCRYPTION_INFO_64"); len(infos) > 0 {
		if enc, ok := infos[0].(*macho.EncryptionInfo64); ok && enc.CryptID != 0 {
			return true
		}
	}
	if infos := m.GetLoadsByName("LC_ENCRYPTION_INFO"); len(infos) > 0 {
		if enc, ok := infos[0].(*macho.EncryptionInfo); ok && enc.CryptID != 0 {
			return true
		}
	}
	// appending load commands only works when the signature blob seals the
	// end of the load-command table
	if len(m.GetLoadsByName("LC_CODE_SIGNATURE")) > 0 {
		if _, ok := m.Loads[len(m.Loads)-1].(*macho.CodeSignature); !ok {
			return true
		}
	}
	// headroom between the load commands and the first section's file data
	var firstSect uint32
	for _, s := range m.Sections {
		if s.Offset == 0 {
			continue
		}
		if firstSect == 0 || s.Offset < firstSect {
			firstSect = s.Offset
		}
	}
	if firstSect == 0 {
		return false
	}
	headerSize := uint32(binary.Size(types.FileHeader{}))
	worstCase := pointerAlign(uint32(binary.Size(types.DylibCmd{})+256)) +
		pointerAlign(uint32(binary.Size(types.RpathCmd{})+64))
	return m.FileHeader.SizeCommands+headerSize+worstCase > firstSect
}

// AdhocSign re-signs a Mach-O with an ad-hoc signature.
func AdhocSign(machoPath string) error {
	return patchMachO(machoPath, func(m *macho.File) error {
		if err := m.CodeSign(&codesign.Config{Flags: cstypes.ADHOC}); err != nil {
			return fmt.Errorf("failed to codesign MachO file: %v", err)
		}
		return nil
	})
}

// readMachO opens machoPath (thin or universal) and calls f on every slice
// without writing anything back.
func readMachO(machoPath string, f func(m *macho.File) error) error {
	if fat, err := macho.OpenFat(machoPath); err == nil {
		defer fat.Close()
		for _, arch := range fat.Arches {
			if err := f(arch.File); err != nil {
				return err
			}
		}
		return nil
	} else if !errors.Is(err, macho.ErrNotFat) {
		return fmt.Errorf("%w: %s: %v", ErrMachOWrite, machoPath, err)
	}
	m, err := macho.Open(machoPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMachOWrite, machoPath, err)
	}
	defer m.Close()
	return f(m)
}

// patchMachO applies edit to every slice of machoPath and writes the result
// back in place.
func patchMachO(machoPath string, edit func(m *macho.File) error) error {
	if fat, err := macho.OpenFat(machoPath); err == nil { // UNIVERSAL MACHO
		defer fat.Close()
		var slices []string
		for _, arch := range fat.Arches {
			if err := edit(arch.File); err != nil {
				return fmt.Errorf("%w: %s (%s slice): %v", ErrMachOWrite, machoPath, arch.File.CPU.String(), err)
			}
			tmp, err := os.CreateTemp("", "macho_"+arch.File.CPU.String())
			if err != nil {
				return fmt.Errorf("failed to create temp file: %v", err)
			}
			defer os.Remove(tmp.Name())
			if err := arch.File.Save(tmp.Name()); err != nil {
				return fmt.Errorf("%w: failed to save temp slice: %v", ErrMachOWrite, err)
			}
			if err := tmp.Close(); err != nil {
				return fmt.Errorf("failed to close temp file: %v", err)
			}
			slices = append(slices, tmp.Name())
		}
		if ff, err := macho.CreateFat(machoPath, slices...); err != nil {
			return fmt.Errorf("%w: failed to create fat file: %v", ErrMachOWrite, err)
		} else {
			defer ff.Close()
		}
		return nil
	} else if !errors.Is(err, macho.ErrNotFat) {
		return fmt.Errorf("%w: %s: %v", ErrMachOWrite, machoPath, err)
	}
	m, err := macho.Open(machoPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMachOWrite, machoPath, err)
	}
	defer m.Close()
	if err := edit(m); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMachOWrite, machoPath, err)
	}
	if err := m.Save(machoPath); err != nil {
		return fmt.Errorf("%w: failed to save %s: %v", ErrMachOWrite, machoPath, err)
	}
	return nil
}
