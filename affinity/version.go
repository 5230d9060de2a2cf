package affinity

// Version information for the affinity monitor.
const (
	// Version is the current version of the monitor runtime.
	Version = "0.3.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the monitor.
type Info struct {
	// Version is the runtime version string.
	Version string

	// AffinityPolicy describes how the affinity goroutine is recognized.
	AffinityPolicy string

	// Woven indicates whether woven code registered itself.
	Woven bool
}

// GetInfo returns information about the monitor runtime.
//
// Example:
//
//	info := affinity.GetInfo()
//	fmt.Printf("affinity %s (%s)\n", info.Version, info.AffinityPolicy)
func GetInfo() Info {
	return Info{
		Version:        Version,
		AffinityPolicy: "goroutine name prefix",
		Woven:          Woven(),
	}
}
