package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralt/rpmci/internal/models"
)

func TestRepoID(t *testing.T) {
	tests := []struct {
		name, mock, want string
	}{
		{"pkg", "epel-6-x86_64", "pkg-epel-6-x86_64"},
		{"My Job", "epel-5-i386", "my-job-epel-5-i386"},
		{"folder/job", "fedora-40-x86_64", "folder-job-fedora-40-x86_64"},
		{"job#1", "epel-6-x86_64", "job1-epel-6-x86_64"},
	}

	for _, tt := range tests {
		if got := RepoID(tt.name, tt.mock); got != tt.want {
			t.Errorf("RepoID(%q, %q) = %q, want %q", tt.name, tt.mock, got, tt.want)
		}
	}
}

func TestBaseURL(t *testing.T) {
	got := BaseURL("https://ci.example.com/job/pkg/", "/ws/pkg", "/ws/pkg/result/epel-6-x86_64")
	if want := "https://ci.example.com/job/pkg/ws/result/epel-6-x86_64"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	got = BaseURL("https://ci.example.com/job/pkg", "/ws/pkg", "/srv/elsewhere/epel-6-x86_64")
	if want := "https://ci.example.com/job/pkg/ws/epel-6-x86_64"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if got := BaseURL("", "/ws/pkg", "/ws/pkg/result/epel-6-x86_64"); got != "file:///ws/pkg/result/epel-6-x86_64" {
		t.Errorf("Expected file URL, got %s", got)
	}
}

func TestGenerateRepoFile(t *testing.T) {
	config := &models.RepositoryConfig{
		RepoID:  "pkg-epel-6-x86_64",
		Name:    "pkg (epel-6-x86_64)",
		BaseURL: "https://ci.example.com/job/pkg/ws/result/epel-6-x86_64",
	}

	want := `[pkg-epel-6-x86_64]
name=pkg (epel-6-x86_64)
baseurl=https://ci.example.com/job/pkg/ws/result/epel-6-x86_64
enabled=1
gpgcheck=0
`
	if got := string(GenerateRepoFile(config, false)); got != want {
		t.Errorf("Unexpected .repo content:\n%s\nwant:\n%s", got, want)
	}

	signed := string(GenerateRepoFile(config, true))
	if !strings.HasSuffix(signed, "repo_gpgcheck=1\ngpgkey=https://ci.example.com/job/pkg/ws/result/epel-6-x86_64/RPM-GPG-KEY-rpmci\n") {
		t.Errorf("Unexpected signed .repo content:\n%s", signed)
	}
}

func TestGenerateRepoFileDefaults(t *testing.T) {
	config := &models.RepositoryConfig{Dir: "/tmp/My Repo", BaseURL: "file:///tmp/My Repo"}
	content := string(GenerateRepoFile(config, false))
	if !strings.HasPrefix(content, "[my-repo]\nname=my-repo\n") {
		t.Errorf("Unexpected defaults:\n%s", content)
	}
}

func TestGeneratePrimaryXML(t *testing.T) {
	packages := []models.Package{
		{
			Name:         "pkga",
			Epoch:        "2",
			Version:      "1.0",
			Release:      "1.el5",
			Architecture: "i386",
			Summary:      "Package <A>",
			License:      "MIT",
			SourceRPM:    "pkga-1.0-1.el5.src.rpm",
			Provides:     []string{"pkga", "pkga(x86-32)"},
			Filename:     "pkga-1.0-1.el5.i386.rpm",
			Size:         42,
			Checksum:     "abc123",
			HeaderStart:  280,
			HeaderEnd:    4096,
		},
		{
			Name:         "pkgb",
			Version:      "2.0",
			Release:      "1",
			Architecture: "noarch",
			Filename:     "pkgb-2.0-1.noarch.rpm",
		},
	}

	data, err := GeneratePrimaryXML(packages, "sha", 1700000000)
	if err != nil {
		t.Fatalf("GeneratePrimaryXML failed: %v", err)
	}
	xml := string(data)

	for _, want := range []string{
		`packages="2"`,
		`<version epoch="2" ver="1.0" rel="1.el5"></version>`,
		`<version epoch="0" ver="2.0" rel="1"></version>`,
		`<checksum type="sha" pkgid="YES">abc123</checksum>`,
		`<summary>Package &lt;A&gt;</summary>`,
		`<rpm:header-range start="280" end="4096"></rpm:header-range>`,
		`<rpm:entry name="pkga(x86-32)"></rpm:entry>`,
		`<time file="1700000000" build="0"></time>`,
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("primary.xml missing %q:\n%s", want, xml)
		}
	}
	if strings.Count(xml, "<rpm:requires>") != 0 {
		t.Error("Empty requires should be omitted")
	}
}

func TestParsePackageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rpm")
	os.WriteFile(path, []byte("definitely not an rpm"), 0644)

	if _, err := ParsePackage(path, "sha256"); err == nil {
		t.Error("Expected an error for a non-RPM file")
	}
}

func TestDependencies(t *testing.T) {
	got := dependencies([]string{"rpmlib(CompressedFileNames)", "glibc", " ", "glibc", "/bin/sh"})
	if strings.Join(got, ",") != "glibc,/bin/sh" {
		t.Errorf("Unexpected dependencies: %v", got)
	}
}
