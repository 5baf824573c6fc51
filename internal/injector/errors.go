package injector

import "errors"

var (
	// ErrBundleMetadata means the bundle's Info.plist is missing, unparseable
	// or lacks a required field.
	ErrBundleMetadata = errors.New("bundle metadata missing or invalid")
	// ErrUnsupportedAsset means the asset's extension is not one of
	// dylib/framework/bundle.
	ErrUnsupportedAsset = errors.New("unsupported asset type")
	// ErrMachOWrite means a load-command edit was attempted on a protected or
	// malformed Mach-O.
	ErrMachOWrite = errors.New("cannot modify Mach-O")
	// ErrSignatureBypass means the privileged helper exited non-zero or was
	// terminated by a signal.
	ErrSignatureBypass = errors.New("signature bypass failed")
	// ErrNoEligibleFramework means every candidate Mach-O in the app was
	// signature-protected. Apps processed by app-thinning or resource
	// stripping tools commonly ship without a usable framework set.
	ErrNoEligibleFramework = errors.New("no eligible framework found: the app was likely sideloaded with a tool that strips or thins its frameworks")
)
