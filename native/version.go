package native

import "fmt"

// Version is a supported native library release.
type Version uint16

const (
	V14 Version = 14
	V15 Version = 15
	V16 Version = 16
	V17 Version = 17
	V18 Version = 18
)

// Versions lists every release the wrapper can be built against.
var Versions = []Version{V14, V15, V16, V17, V18}

func (v Version) String() string {
	return fmt.Sprintf("%d.0", uint16(v))
}

// Feature is a version dependent part of the native API.
type Feature uint8

const (
	// FeatureOpaquePointers is the address-space-only pointer type.
	FeatureOpaquePointers Feature = iota
	// FeatureMetadataType is the standalone metadata type.
	FeatureMetadataType
)

var featureSince = map[Feature]Version{
	FeatureOpaquePointers: V15,
	FeatureMetadataType:   V14,
}

// Supports reports whether the build-time TargetVersion provides f.
func Supports(f Feature) bool {
	return SupportedBy(TargetVersion, f)
}

// SupportedBy reports whether version v provides f.
func SupportedBy(v Version, f Feature) bool {
	since, ok := featureSince[f]
	return ok && v >= since
}
