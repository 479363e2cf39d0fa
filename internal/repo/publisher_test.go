package repo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/signer"
	"github.com/ralt/rpmci/internal/utils"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeParse derives package metadata from <name>-<version>-<release>.<arch>.rpm
func fakeParse(path, algo string) (*models.Package, error) {
	sum, size, err := utils.CalculateFileChecksum(path, algo)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), ".rpm")
	dot := strings.LastIndex(base, ".")
	arch := base[dot+1:]
	parts := strings.Split(base[:dot], "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("unexpected file name %s", path)
	}

	pkg := &models.Package{
		Name:         parts[0],
		Version:      parts[1],
		Release:      parts[2],
		Architecture: arch,
		Summary:      "Test package " + parts[0],
		SourceRPM:    parts[0] + "-" + parts[1] + "-" + parts[2] + ".src.rpm",
		Requires:     []string{"glibc"},
		Filename:     path,
		Size:         size,
		Checksum:     sum,
	}
	if arch == "src" {
		pkg.SourceRPM = ""
	}
	return pkg, nil
}

func newTestPublisher(runner execx.Runner, s signer.Signer) (*Publisher, *bytes.Buffer) {
	var out bytes.Buffer
	p := NewPublisher(runner, s)
	p.Parse = fakeParse
	p.now = func() time.Time { return fixedNow }
	p.Out = &out
	return p, &out
}

func readPrimary(t *testing.T, dir string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "repodata", "*-primary.xml.gz"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("Expected one primary.xml.gz, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("Failed to read primary: %v", err)
	}
	xml, err := utils.GzipDecompress(data)
	if err != nil {
		t.Fatalf("Failed to decompress primary: %v", err)
	}
	return string(xml)
}

func TestPublishEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	p, out := newTestPublisher(nil, nil)

	config := &models.RepositoryConfig{
		Dir:     dir,
		RepoID:  "pkg-epel-6-x86_64",
		Name:    "pkg (epel-6-x86_64)",
		BaseURL: "https://ci.example.com/job/pkg/ws/result/epel-6-x86_64",
	}

	path, err := p.Publish(context.Background(), config)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if path != filepath.Join(dir, "pkg-epel-6-x86_64.repo") {
		t.Errorf("Unexpected .repo path %s", path)
	}
	if _, err := os.Stat(filepath.Join(dir, "repodata", "repomd.xml")); err != nil {
		t.Errorf("repomd.xml not created: %v", err)
	}
	if primary := readPrimary(t, dir); !strings.Contains(primary, `packages="0"`) {
		t.Errorf("Expected empty primary.xml, got:\n%s", primary)
	}
	if !strings.Contains(out.String(), "[pkg-epel-6-x86_64]") {
		t.Errorf(".repo content was not echoed, got %q", out.String())
	}
}

func TestPublishIndexesPackages(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "pkg-1.0-1.x86_64.rpm"), []byte("binary package"), 0644)
	os.WriteFile(filepath.Join(dir, "pkg-1.0-1.src.rpm"), []byte("source package"), 0644)
	os.WriteFile(filepath.Join(dir, "build.log"), []byte("log"), 0644)
	os.MkdirAll(filepath.Join(dir, "repodata"), 0755)
	os.WriteFile(filepath.Join(dir, "repodata", "stale-primary.xml.gz"), []byte("stale"), 0644)

	p, _ := newTestPublisher(nil, nil)

	config := &models.RepositoryConfig{
		Dir:      dir,
		RepoID:   "pkg-epel-5-x86_64",
		BaseURL:  "file:///srv/repo",
		Checksum: utils.ChecksumSHA,
	}
	if _, err := p.Publish(context.Background(), config); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	primary := readPrimary(t, dir)
	for _, want := range []string{
		`packages="2"`,
		`<checksum type="sha" pkgid="YES">`,
		`<arch>src</arch>`,
		`<rpm:entry name="glibc"></rpm:entry>`,
		`<version epoch="0" ver="1.0" rel="1"></version>`,
	} {
		if !strings.Contains(primary, want) {
			t.Errorf("primary.xml missing %q:\n%s", want, primary)
		}
	}
	if strings.Contains(primary, "build.log") {
		t.Error("Non-package file was indexed")
	}

	repomd, _ := os.ReadFile(filepath.Join(dir, "repodata", "repomd.xml"))
	if !strings.Contains(string(repomd), `<checksum type="sha">`) {
		t.Errorf("repomd.xml does not use sha checksums:\n%s", repomd)
	}
	if !strings.Contains(string(repomd), fmt.Sprintf("<revision>%d</revision>", fixedNow.Unix())) {
		t.Errorf("repomd.xml has wrong revision:\n%s", repomd)
	}
	if _, err := os.Stat(filepath.Join(dir, "repodata", "stale-primary.xml.gz")); !os.IsNotExist(err) {
		t.Error("Stale metadata was not removed")
	}
}

func TestPublishLocationsAreRelative(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "x86_64"), 0755)
	os.WriteFile(filepath.Join(dir, "x86_64", "tool-2.0-3.x86_64.rpm"), []byte("pkg"), 0644)

	p, _ := newTestPublisher(nil, nil)
	if _, err := p.Publish(context.Background(), &models.RepositoryConfig{Dir: dir, RepoID: "tool"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	primary := readPrimary(t, dir)
	if !strings.Contains(primary, `<location href="x86_64/tool-2.0-3.x86_64.rpm"></location>`) {
		t.Errorf("Unexpected location in primary.xml:\n%s", primary)
	}
	if !strings.Contains(primary, `<checksum type="sha256" pkgid="YES">`) {
		t.Errorf("Expected sha256 by default:\n%s", primary)
	}
}

func TestPublishParseFailure(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.rpm"), []byte("not an rpm"), 0644)

	p, _ := newTestPublisher(nil, nil)
	p.Parse = ParsePackage

	_, err := p.Publish(context.Background(), &models.RepositoryConfig{Dir: dir, RepoID: "broken"})
	if !models.IsType(err, models.ErrIndex) {
		t.Errorf("Expected ErrIndex, got %v", err)
	}
}

func TestPublishMissingDirectory(t *testing.T) {
	p, _ := newTestPublisher(nil, nil)
	_, err := p.Publish(context.Background(), &models.RepositoryConfig{Dir: filepath.Join(t.TempDir(), "missing")})
	if !models.IsType(err, models.ErrFileOp) {
		t.Errorf("Expected ErrFileOp, got %v", err)
	}
}

func TestPublishSigned(t *testing.T) {
	entity, err := openpgp.NewEntity("rpmci test", "", "rpmci@example.com", nil)
	if err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}

	dir := t.TempDir()
	p, _ := newTestPublisher(nil, signer.NewGPGSignerFromEntity(entity))
	config := &models.RepositoryConfig{Dir: dir, RepoID: "signed", BaseURL: "https://repo.example.com/signed/"}
	path, err := p.Publish(context.Background(), config)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	repomd, _ := os.ReadFile(filepath.Join(dir, "repodata", "repomd.xml"))
	sig, err := os.Open(filepath.Join(dir, "repodata", "repomd.xml.asc"))
	if err != nil {
		t.Fatalf("Signature not written: %v", err)
	}
	defer sig.Close()

	keyring := openpgp.EntityList{entity}
	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(repomd), sig, nil); err != nil {
		t.Errorf("Signature does not verify: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, PublicKeyFile)); err != nil {
		t.Errorf("Public key not published: %v", err)
	}

	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "repo_gpgcheck=1\n") {
		t.Errorf(".repo file does not enable metadata checks:\n%s", content)
	}
	if !strings.Contains(string(content), "gpgkey=https://repo.example.com/signed/"+PublicKeyFile) {
		t.Errorf(".repo file has wrong gpgkey:\n%s", content)
	}
}

func TestPublishCreaterepo(t *testing.T) {
	dir := t.TempDir()
	runner := execx.NewFakeRunner()
	runner.On(Createrepo, func(c execx.Command) (*execx.Result, error) {
		os.MkdirAll(filepath.Join(dir, "repodata"), 0755)
		os.WriteFile(filepath.Join(dir, "repodata", "repomd.xml"), []byte("<repomd/>"), 0644)
		return &execx.Result{Command: c}, nil
	})

	p, _ := newTestPublisher(runner, nil)
	config := &models.RepositoryConfig{Dir: dir, RepoID: "legacy", Checksum: utils.ChecksumSHA, Createrepo: true}
	if _, err := p.Publish(context.Background(), config); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	calls := runner.Called(Createrepo)
	if len(calls) != 1 {
		t.Fatalf("Expected one createrepo call, got %d", len(calls))
	}
	want := []string{"-s", "sha", dir}
	if strings.Join(calls[0].Args, " ") != strings.Join(want, " ") {
		t.Errorf("Expected args %v, got %v", want, calls[0].Args)
	}
}

func TestPublishCreaterepoDefaultChecksum(t *testing.T) {
	dir := t.TempDir()
	runner := execx.NewFakeRunner()
	p, _ := newTestPublisher(runner, nil)

	config := &models.RepositoryConfig{Dir: dir, RepoID: "modern", Checksum: utils.ChecksumSHA256, Createrepo: true}
	if _, err := p.Publish(context.Background(), config); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if args := runner.Called(Createrepo)[0].Args; len(args) != 1 || args[0] != dir {
		t.Errorf("Expected only the directory argument, got %v", args)
	}
}

func TestPublishCreaterepoFailure(t *testing.T) {
	runner := execx.NewFakeRunner()
	runner.On(Createrepo, func(c execx.Command) (*execx.Result, error) {
		return execx.Fail(c, 2, "createrepo: error")
	})

	p, _ := newTestPublisher(runner, nil)
	_, err := p.Publish(context.Background(), &models.RepositoryConfig{Dir: t.TempDir(), Createrepo: true})
	if !models.IsType(err, models.ErrTool) {
		t.Errorf("Expected ErrTool, got %v", err)
	}
}
