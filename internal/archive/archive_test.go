package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/vcs"
)

func setupRepo(t *testing.T) (*vcs.GitRepo, string) {
	t.Helper()

	tr, err := vcs.InitTestRepo(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}
	_, err = tr.Commit("init", map[string]string{
		"pkg.spec":       "Name: pkg\n",
		"src/main.c":     "int main(void) { return 0; }\n",
		"src/lib/util.c": "/* util */\n",
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	repo, err := vcs.Open(tr.Dir)
	if err != nil {
		t.Fatalf("Failed to open repo: %v", err)
	}
	return repo, tr.Dir
}

func readTarGz(t *testing.T, path string) map[string]*tar.Header {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("Archive is not gzip compressed: %v", err)
	}

	entries := make(map[string]*tar.Header)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read tar: %v", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		entries[hdr.Name] = hdr
	}
	return entries
}

func TestEnsureTarGz(t *testing.T) {
	repo, dir := setupRepo(t)
	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}

	created, err := NewBuilder(repo, dir).Ensure(context.Background(), id, "pkg-1.0.tar.gz")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created {
		t.Fatal("Expected archive to be created")
	}

	entries := readTarGz(t, filepath.Join(dir, "pkg-1.0.tar.gz"))

	for name := range entries {
		if !strings.HasPrefix(name, "pkg-1.0/") {
			t.Errorf("Entry outside top-level directory: %s", name)
		}
	}
	for _, want := range []string{"pkg-1.0/", "pkg-1.0/pkg.spec", "pkg-1.0/src/", "pkg-1.0/src/lib/", "pkg-1.0/src/lib/util.c"} {
		if _, ok := entries[want]; !ok {
			t.Errorf("Missing entry %s", want)
		}
	}
	if hdr := entries["pkg-1.0/src/main.c"]; hdr == nil || hdr.Size != int64(len("int main(void) { return 0; }\n")) {
		t.Errorf("Unexpected header for main.c: %+v", hdr)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".pkg-1.0-*"))
	if len(leftovers) != 0 {
		t.Errorf("Temporary files left behind: %v", leftovers)
	}
}

func TestEnsureUnknownSuffix(t *testing.T) {
	repo, dir := setupRepo(t)
	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}

	created, err := NewBuilder(repo, dir).Ensure(context.Background(), id, "pkg-1.0.rpm")
	if err == nil {
		t.Fatal("Expected an archive format error")
	}
	if !models.IsType(err, models.ErrArchiveFormat) {
		t.Errorf("Expected ErrArchiveFormat, got %v", err)
	}
	if created {
		t.Error("No archive should be reported as created")
	}
	if _, err := os.Stat(filepath.Join(dir, "pkg-1.0.rpm")); !os.IsNotExist(err) {
		t.Error("Archive file should not exist")
	}
}

func TestEnsureWrongPrefix(t *testing.T) {
	repo, dir := setupRepo(t)
	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}

	_, err := NewBuilder(repo, dir).Ensure(context.Background(), id, "other-1.0.tar.gz")
	if !models.IsType(err, models.ErrArchiveFormat) {
		t.Errorf("Expected ErrArchiveFormat, got %v", err)
	}
}

func TestEnsureExistingArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.tar.gz")
	os.WriteFile(path, []byte("upstream tarball"), 0644)

	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}
	created, err := NewBuilder(nil, dir).Ensure(context.Background(), id, "pkg-1.0.tar.gz")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if created {
		t.Error("Existing archive must not be rebuilt")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "upstream tarball" {
		t.Error("Existing archive was modified")
	}
}

func TestEnsureWithoutRepository(t *testing.T) {
	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}
	_, err := NewBuilder(nil, t.TempDir()).Ensure(context.Background(), id, "pkg-1.0.tar.gz")
	if !models.IsType(err, models.ErrFileOp) {
		t.Errorf("Expected ErrFileOp, got %v", err)
	}
}

func TestWriteZip(t *testing.T) {
	repo, _ := setupRepo(t)
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}

	format, _ := FormatForSuffix(".zip")
	var buf bytes.Buffer
	if err := Write(context.Background(), &buf, repo, format, "pkg-2.0", head); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Not a zip archive: %v", err)
	}
	if zr.Comment != head.Hash {
		t.Errorf("Expected comment %s, got %s", head.Hash, zr.Comment)
	}

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"pkg-2.0/", "pkg-2.0/src/main.c", "pkg-2.0/src/lib/util.c"} {
		if !names[want] {
			t.Errorf("Missing zip entry %s", want)
		}
	}
}

func TestWriteAllFormats(t *testing.T) {
	repo, _ := setupRepo(t)
	head, _ := repo.Head()

	for _, suffix := range Suffixes() {
		format, ok := FormatForSuffix(suffix)
		if !ok {
			t.Fatalf("Suffix %s not recognised", suffix)
		}
		var buf bytes.Buffer
		if err := Write(context.Background(), &buf, repo, format, "pkg-1.0", head); err != nil {
			t.Errorf("%s: Write failed: %v", suffix, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty archive", suffix)
		}
	}

	if _, ok := FormatForSuffix(".rpm"); ok {
		t.Error(".rpm must not be a recognised archive suffix")
	}
}

func TestEnsureRenameFailureRemovesTempFile(t *testing.T) {
	repo, dir := setupRepo(t)
	id := &models.Identity{Name: "pkg", Version: "1.0", BaseVersion: "1.0"}

	// a non-empty directory in the way makes the final rename fail
	blocker := filepath.Join(dir, "pkg-1.0.tar.gz")
	if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0755); err != nil {
		t.Fatalf("Failed to create blocking directory: %v", err)
	}

	created, err := NewBuilder(repo, dir).Ensure(context.Background(), id, "pkg-1.0.tar.gz")
	if err != nil {
		t.Fatalf("Ensure should only log a rename failure, got %v", err)
	}
	if created {
		t.Error("Ensure reported an archive although none was written")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".pkg-1.0-*"))
	if len(leftovers) != 0 {
		t.Errorf("Temporary archive left behind: %v", leftovers)
	}
}
