package plist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blacktop/go-plist"
)

// AppInfo is the Info.plist object found in .app/.framework/.bundle packages
// https://developer.apple.com/library/archive/documentation/General/Reference/InfoPlistKeyReference/Introduction/Introduction.html#//apple_ref/doc/uid/TP40009248-SW1
type AppInfo struct {
	CFBundleDevelopmentRegion     string   `plist:"CFBundleDevelopmentRegion,omitempty"`
	CFBundleDisplayName           string   `plist:"CFBundleDisplayName,omitempty"`
	CFBundleExecutable            string   `plist:"CFBundleExecutable,omitempty"`
	CFBundleIdentifier            string   `plist:"CFBundleIdentifier,omitempty"`
	CFBundleInfoDictionaryVersion string   `plist:"CFBundleInfoDictionaryVersion,omitempty"`
	CFBundleName                  string   `plist:"CFBundleName,omitempty"`
	CFBundlePackageType           string   `plist:"CFBundlePackageType,omitempty"`
	CFBundleShortVersionString    string   `plist:"CFBundleShortVersionString,omitempty"`
	CFBundleSupportedPlatforms    []string `plist:"CFBundleSupportedPlatforms,omitempty"`
	CFBundleVersion               string   `plist:"CFBundleVersion,omitempty"`
	MinimumOSVersion              string   `plist:"MinimumOSVersion,omitempty"`
}

func (i *AppInfo) String() string {
	var out string
	out += "[Info]\n"
	out += "======\n"
	out += fmt.Sprintf("CFBundleExecutable: %s\n", i.CFBundleExecutable)
	out += fmt.Sprintf("CFBundleIdentifier: %s\n", i.CFBundleIdentifier)
	out += fmt.Sprintf("CFBundleName: %s\n", i.CFBundleName)
	out += fmt.Sprintf("CFBundleShortVersionString: %s\n", i.CFBundleShortVersionString)
	out += fmt.Sprintf("CFBundleVersion: %s\n", i.CFBundleVersion)
	return out
}

// ParseAppInfo parses an Info.plist
func ParseAppInfo(data []byte) (*AppInfo, error) {
	i := &AppInfo{}
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(i); err != nil {
		return nil, fmt.Errorf("failed to parse Info.plist: %w", err)
	}
	return i, nil
}

// AppInfoFromBundle reads and parses <bundle>/Info.plist
func AppInfoFromBundle(path string) (*AppInfo, error) {
	infoPath := filepath.Join(path, "Info.plist")
	dat, err := os.ReadFile(infoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", infoPath, err)
	}
	return ParseAppInfo(dat)
}

// GetBinaryInApp returns the executable path declared by the given bundle
func GetBinaryInApp(path string) (string, error) {
	ainfo, err := AppInfoFromBundle(path)
	if err != nil {
		return "", err
	}
	if ainfo.CFBundleExecutable == "" {
		return "", fmt.Errorf("failed to find CFBundleExecutable in %s", filepath.Join(path, "Info.plist"))
	}
	return filepath.Join(path, ainfo.CFBundleExecutable), nil
}
