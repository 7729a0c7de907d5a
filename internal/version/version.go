// ABOUTME: Build and product identification constants
// ABOUTME: Shared by the sender and receiver binaries for banners and discovery
package version

const (
	// Version is the release version of the binaries.
	Version = "0.1.0"

	// Product is the user-facing product name.
	Product = "D-MIC"

	// Manufacturer identifies the project in discovery records.
	Manufacturer = "dmic-audio"
)
