package models

import "fmt"

// Package represents a built RPM found in a result directory
type Package struct {
	// Header metadata
	Name         string
	Epoch        string
	Version      string
	Release      string
	Architecture string
	Summary      string
	Description  string
	Packager     string
	URL          string
	License      string
	Group        string
	SourceRPM    string
	BuildTime    int64
	Requires     []string
	Provides     []string

	// File information. Filename is relative to the repository root once
	// the package has been indexed.
	Filename      string
	Size          int64
	InstalledSize int64
	Checksum      string
	HeaderStart   int
	HeaderEnd     int
}

// IsSource reports whether the package is a source RPM
func (p *Package) IsSource() bool {
	return p.SourceRPM == ""
}

// NEVRA returns the name-epoch:version-release.arch identifier
func (p *Package) NEVRA() string {
	epoch := p.Epoch
	if epoch == "" {
		epoch = "0"
	}
	return fmt.Sprintf("%s-%s:%s-%s.%s", p.Name, epoch, p.Version, p.Release, p.Architecture)
}
