// Package db provides the persisted-asset store interface and implementations.
package db

// Database is the interface that wraps the persisted-asset store operations.
//
// Records are keyed by application bundle identifier and survive process
// restarts as well as app reinstalls/updates. Readers must tolerate records
// whose asset paths no longer exist on disk.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// SaveAssets records the given asset paths against an app identifier,
	// merging with any previously recorded paths.
	SaveAssets(identifier string, paths []string) error

	// Assets returns the asset paths recorded for an app identifier.
	// It returns model.ErrNotFound if no record exists.
	Assets(identifier string) ([]string, error)

	// Prune removes the given asset paths from an app's record. An empty
	// paths slice removes the whole record.
	Prune(identifier string, paths []string) error

	// Close closes the database.
	Close() error
}
