package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ralt/rpmci/internal/models"
)

// PublicKeyFile is the name the signing key is published under
const PublicKeyFile = "RPM-GPG-KEY-rpmci"

// RepoID builds the repository id from the job (or package) name and the
// mock configuration
func RepoID(name, mockConfig string) string {
	return sanitizeRepoID(name + "-" + mockConfig)
}

// BaseURL returns the URL the CI server exposes dir under. Without a job URL
// the directory is referenced as a local file:// repository.
func BaseURL(jobURL, workDir, dir string) string {
	if jobURL != "" {
		rel, err := filepath.Rel(workDir, dir)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(dir)
		}
		return strings.TrimSuffix(jobURL, "/") + "/ws/" + filepath.ToSlash(rel)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return "file://" + filepath.ToSlash(abs)
}

// GenerateRepoFile creates a .repo configuration file for yum/dnf
func GenerateRepoFile(config *models.RepositoryConfig, isSigned bool) []byte {
	repoID := repoIDFor(config)
	name := config.Name
	if name == "" {
		name = repoID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", repoID)
	fmt.Fprintf(&b, "name=%s\n", name)
	fmt.Fprintf(&b, "baseurl=%s\n", config.BaseURL)
	b.WriteString("enabled=1\n")

	// Packages are not signed, only the metadata is
	b.WriteString("gpgcheck=0\n")
	if isSigned {
		b.WriteString("repo_gpgcheck=1\n")
		fmt.Fprintf(&b, "gpgkey=%s/%s\n", strings.TrimSuffix(config.BaseURL, "/"), PublicKeyFile)
	}

	return []byte(b.String())
}

func repoIDFor(config *models.RepositoryConfig) string {
	if config.RepoID != "" {
		return config.RepoID
	}
	if id := sanitizeRepoID(config.Name); id != "" {
		return id
	}
	return sanitizeRepoID(filepath.Base(config.Dir))
}

// sanitizeRepoID creates a valid repository ID from a string
func sanitizeRepoID(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch {
		case (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.':
			b.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			b.WriteRune(ch - 'A' + 'a')
		case ch == ' ' || ch == '/':
			b.WriteRune('-')
		}
	}
	return b.String()
}
