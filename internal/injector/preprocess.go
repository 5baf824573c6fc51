package injector

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/blakesmith/ar"
	"github.com/ulikunitz/xz"
)

// AssetKind classifies an injectable asset by extension.
type AssetKind int

const (
	// AssetDylib is a loose single-file dynamic library.
	AssetDylib AssetKind = iota
	// AssetFramework is a .framework directory with a discoverable executable.
	AssetFramework
	// AssetResourceBundle is a plain .bundle payload copied without any
	// Mach-O edits.
	AssetResourceBundle
)

// Asset is one preprocessed injection input.
type Asset struct {
	Path string
	Kind AssetKind
}

// MachO returns the asset's Mach-O path: the dylib itself, or the framework's
// declared executable. Resource bundles carry no Mach-O.
func (a Asset) MachO() (string, error) {
	switch a.Kind {
	case AssetDylib:
		return a.Path, nil
	case AssetFramework:
		return LocateExecutable(a.Path)
	default:
		return "", fmt.Errorf("%w: %s has no executable", ErrUnsupportedAsset, filepath.Base(a.Path))
	}
}

// ClassifyAssets validates and classifies asset paths before any mutation
// begins. Any unrecognized extension rejects the whole operation.
func ClassifyAssets(paths []string) ([]Asset, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no assets supplied", ErrUnsupportedAsset)
	}
	var assets []Asset
	for _, path := range paths {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".dylib":
			assets = append(assets, Asset{Path: path, Kind: AssetDylib})
		case ".framework":
			if _, err := LocateExecutable(path); err != nil {
				return nil, fmt.Errorf("%w: framework %s has no discoverable executable", ErrUnsupportedAsset, filepath.Base(path))
			}
			assets = append(assets, Asset{Path: path, Kind: AssetFramework})
		case ".bundle":
			assets = append(assets, Asset{Path: path, Kind: AssetResourceBundle})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, filepath.Base(path))
		}
	}
	return assets, nil
}

// preprocessAsset canonicalizes an asset's own load commands before it is
// copied into the app: any reference to a substrate/substitute flavored shim
// is retargeted to the canonical in-bundle CydiaSubstrate path, then the
// asset is bypass-signed so it loads after modification.
func (i *Injector) preprocessAsset(asset Asset) error {
	if asset.Kind == AssetResourceBundle {
		return nil
	}
	machO, err := asset.MachO()
	if err != nil {
		return err
	}
	dylibs, err := ListDylibs(machO)
	if err != nil {
		return err
	}
	for _, ref := range dylibs {
		if !ignoredDylibAndFrameworkNames[strings.ToLower(filepath.Base(ref))] {
			continue
		}
		if err := RewriteDylib(machO, ref, substrateLoadPath); err != nil {
			return err
		}
	}
	return i.bypassCoreTrust(machO)
}

// ExpandDeb extracts the dylib/framework/bundle payloads of a .deb archive
// into destDir and returns their paths. A deb is an ar archive holding a
// data.tar.{gz,xz} member with the actual file tree.
func ExpandDeb(debPath, destDir string) ([]string, error) {
	f, err := os.Open(debPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open deb: %w", err)
	}
	defer f.Close()

	rdr := ar.NewReader(f)
	for {
		hdr, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read deb archive: %w", err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		var tr *tar.Reader
		switch {
		case name == "data.tar.gz":
			gz, err := gzip.NewReader(rdr)
			if err != nil {
				return nil, fmt.Errorf("failed to read data.tar.gz: %w", err)
			}
			defer gz.Close()
			tr = tar.NewReader(gz)
		case name == "data.tar.xz":
			xr, err := xz.NewReader(rdr)
			if err != nil {
				return nil, fmt.Errorf("failed to read data.tar.xz: %w", err)
			}
			tr = tar.NewReader(xr)
		default:
			continue // control.tar.*, debian-binary
		}
		return untarAssets(tr, destDir)
	}
	return nil, fmt.Errorf("%w: no data archive found in %s", ErrUnsupportedAsset, filepath.Base(debPath))
}

// untarAssets extracts the tar members into destDir and collects top-level
// injectable payloads.
func untarAssets(tr *tar.Reader, destDir string) ([]string, error) {
	destDir = filepath.Clean(destDir)
	seen := make(map[string]bool)
	var assets []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read deb data archive: %w", err)
		}
		rel := filepath.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		target := filepath.Join(destDir, rel)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0755); err != nil {
				return nil, err
			}
		case tar.TypeSymlink:
			// links must stay inside the extraction root
			resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if filepath.IsAbs(hdr.Linkname) || !strings.HasPrefix(resolved, destDir+string(os.PathSeparator)) {
				return nil, fmt.Errorf("%w: symlink %s escapes the deb payload", ErrUnsupportedAsset, rel)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return nil, err
			}
			continue
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return nil, err
			}
			out.Close()
		default:
			continue
		}
		// collect the shallowest path component with an injectable extension
		for p := rel; p != "." && p != "/"; p = filepath.Dir(p) {
			switch strings.ToLower(filepath.Ext(p)) {
			case ".dylib", ".framework", ".bundle":
				abs := filepath.Join(destDir, p)
				if !seen[abs] {
					seen[abs] = true
					assets = append(assets, abs)
					log.Debugf("found %s in deb payload", p)
				}
			}
		}
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: deb contains no injectable payload", ErrUnsupportedAsset)
	}
	return assets, nil
}
