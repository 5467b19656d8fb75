package toolchain

import (
	"runtime"
	"strings"
)

// Platform identifies a download coordinate target.
type Platform struct {
	OS   string
	Arch string
}

func (p Platform) String() string {
	return p.OS + "-" + p.Arch
}

// Ext returns the executable suffix for the platform.
func (p Platform) Ext() string {
	if p.OS == "windows" {
		return ".exe"
	}

	return ""
}

var supportedPlatforms = map[Platform]bool{
	{OS: "linux", Arch: "amd64"}:   true,
	{OS: "linux", Arch: "arm64"}:   true,
	{OS: "darwin", Arch: "amd64"}:  true,
	{OS: "darwin", Arch: "arm64"}:  true,
	{OS: "windows", Arch: "amd64"}: true,
	{OS: "windows", Arch: "arm64"}: true,
}

// HostPlatform resolves the current host to a supported download coordinate.
func HostPlatform() (Platform, error) {
	p := Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}

	if !supportedPlatforms[p] {
		return Platform{}, &UnsupportedPlatformError{OS: p.OS, Arch: p.Arch}
	}

	return p, nil
}

// ExpandURL fills the {version}, {os}, {arch} and {ext} slots of a URL
// template.
func ExpandURL(template, version string, p Platform) string {
	r := strings.NewReplacer(
		"{version}", version,
		"{os}", p.OS,
		"{arch}", p.Arch,
		"{ext}", p.Ext(),
	)

	return r.Replace(template)
}
