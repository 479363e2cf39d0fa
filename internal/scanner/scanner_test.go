package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func rpmLead(leadType byte) []byte {
	lead := make([]byte, 96)
	copy(lead, []byte{0xED, 0xAB, 0xEE, 0xDB, 3, 0, 0, leadType})
	return lead
}

func TestDetectPackageType(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string][]byte{
		"hello-1.0-1.x86_64.rpm": rpmLead(0),
		"hello-1.0-1.src.rpm":    rpmLead(1),
		"misnamed.bin":           rpmLead(0),
		"hello.spec":             []byte("Name: hello\n"),
		"empty.rpm":              {},
	}

	expected := map[string]PackageType{
		"hello-1.0-1.x86_64.rpm": TypeRpm,
		"hello-1.0-1.src.rpm":    TypeSrpm,
		"misnamed.bin":           TypeRpm,
		"hello.spec":             TypeUnknown,
		"empty.rpm":              TypeUnknown,
	}

	for name, data := range files {
		os.WriteFile(filepath.Join(tmpDir, name), data, 0644)
	}

	for name, want := range expected {
		got, err := DetectPackageType(filepath.Join(tmpDir, name))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestScanSkipsRepodata(t *testing.T) {
	tmpDir := t.TempDir()
	os.MkdirAll(filepath.Join(tmpDir, "repodata"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "a-1-1.noarch.rpm"), rpmLead(0), 0644)
	os.WriteFile(filepath.Join(tmpDir, "a-1-1.src.rpm"), rpmLead(1), 0644)
	os.WriteFile(filepath.Join(tmpDir, "repodata", "stale.rpm"), rpmLead(0), 0644)
	os.WriteFile(filepath.Join(tmpDir, "build.log"), []byte("ok"), 0644)

	packages, err := NewFileSystemScanner().Scan(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(packages) != 2 {
		t.Fatalf("Expected 2 packages, got %d: %+v", len(packages), packages)
	}
	for _, p := range packages {
		if filepath.Base(filepath.Dir(p.Path)) == "repodata" {
			t.Errorf("Package under repodata was scanned: %s", p.Path)
		}
	}
}

func TestScanCancelled(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "a.rpm"), rpmLead(0), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFileSystemScanner().Scan(ctx, tmpDir); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
