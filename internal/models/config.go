package models

import "time"

// DefaultMockConfig is used when no --mock flag is given
const DefaultMockConfig = "epel-6-x86_64"

// CIEnv carries the build metadata injected by the CI server
type CIEnv struct {
	BuildNumber string
	BuildTag    string
	BuildURL    string
	JobName     string
	JobURL      string
}

// Config contains the whole configuration of one run. It is built once at
// startup and passed by value afterwards.
type Config struct {
	// Input
	SpecPath string
	WorkDir  string

	// Build
	MockConfig string
	Snapshot   bool
	Debug      bool
	TagRelease bool
	ResultRoot string

	// Publishing
	UseCreaterepo bool
	GPGKeyPath    string
	GPGPassphrase string

	CI  CIEnv
	Now time.Time
}

// RepositoryConfig contains configuration for publishing one result directory
type RepositoryConfig struct {
	Dir        string
	RepoID     string
	Name       string
	BaseURL    string
	Checksum   string
	Createrepo bool
}
