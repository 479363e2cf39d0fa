package models

import "fmt"

// Identity is the resolved name/version/release of the package being built.
// Version already carries the snapshot suffix when one was applied.
type Identity struct {
	Name        string
	Version     string
	BaseVersion string
	Release     string
	Snapshot    string
}

// ReleaseTag returns the version-control tag that claims this release
func (id Identity) ReleaseTag() string {
	return ReleaseTagName(id.BaseVersion, id.Release)
}

// ReleaseTagName formats rpm-release-<version>-<release>
func ReleaseTagName(version, release string) string {
	return fmt.Sprintf("%s%s-%s", ReleaseTagPrefix, version, release)
}

// ReleaseTagPrefix is the prefix of every release tag
const ReleaseTagPrefix = "rpm-release-"

// NameVersion returns <name>-<version>
func (id Identity) NameVersion() string {
	return id.Name + "-" + id.Version
}
