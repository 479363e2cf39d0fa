// Package archive synthesizes the source archive named by a spec file from
// the HEAD tree of its git repository.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/utils"
	"github.com/ralt/rpmci/internal/vcs"
	"github.com/sirupsen/logrus"
)

const stage = "archive"

// TreeSource provides the files to archive
type TreeSource interface {
	Head() (*vcs.Commit, error)
	WalkTree(ctx context.Context, fn func(vcs.TreeFile) error) error
}

// Builder writes source archives into a directory
type Builder struct {
	source TreeSource
	dir    string
}

// NewBuilder creates a Builder. source may be nil outside a git repository,
// in which case only already present archives are accepted.
func NewBuilder(source TreeSource, dir string) *Builder {
	return &Builder{source: source, dir: dir}
}

// Ensure makes sure filename exists in the working directory, building it
// from HEAD when it does not. It reports whether an archive was written.
// An unrecognised suffix yields an ErrArchiveFormat error and no file. A
// failed final rename is only logged; the temporary file is removed.
func (b *Builder) Ensure(ctx context.Context, id *models.Identity, filename string) (bool, error) {
	if filename == "" {
		logrus.Info("Spec file declares no source, skipping archive")
		return false, nil
	}

	target := filepath.Join(b.dir, filename)
	if utils.FileExists(target) {
		logrus.Infof("Source %s already present", filename)
		return false, nil
	}

	prefix := id.NameVersion()
	suffix, ok := strings.CutPrefix(filename, prefix)
	if !ok {
		return false, models.NewError(models.ErrArchiveFormat, stage,
			fmt.Errorf("source %s does not start with %s", filename, prefix))
	}

	format, ok := FormatForSuffix(suffix)
	if !ok {
		return false, models.NewError(models.ErrArchiveFormat, stage,
			fmt.Errorf("unknown archive suffix %q for %s (known: %s)", suffix, filename, strings.Join(Suffixes(), ", ")))
	}

	if b.source == nil {
		return false, models.NewError(models.ErrFileOp, stage,
			fmt.Errorf("source %s is missing and there is no git repository to build it from", filename))
	}

	head, err := b.source.Head()
	if err != nil {
		return false, models.NewError(models.ErrFileOp, stage, err)
	}

	logrus.Infof("Creating %s from %s", filename, head.Short)

	tmp, err := os.CreateTemp(b.dir, "."+prefix+"-*"+suffix)
	if err != nil {
		return false, models.NewError(models.ErrFileOp, stage, err)
	}
	tmpName := tmp.Name()

	if err := Write(ctx, tmp, b.source, format, prefix, head); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, models.NewError(models.ErrFileOp, stage, fmt.Errorf("failed to write %s: %w", filename, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, models.NewError(models.ErrFileOp, stage, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		logrus.Warnf("Failed to rename %s to %s: %v", filepath.Base(tmpName), filename, err)
		os.Remove(tmpName)
		return false, nil
	}

	return true, nil
}

// Write streams the HEAD tree as an archive under a top-level directory
// named prefix. Entries are dated with the commit time.
func Write(ctx context.Context, w io.Writer, source TreeSource, format Format, prefix string, head *vcs.Commit) error {
	cw, err := utils.NewCompressWriter(format.Compression, w)
	if err != nil {
		return err
	}

	switch format.Container {
	case ContainerZip:
		err = writeZip(ctx, cw, source, prefix, head)
	default:
		err = writeTar(ctx, cw, source, prefix, head)
	}
	if err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func writeTar(ctx context.Context, w io.Writer, source TreeSource, prefix string, head *vcs.Commit) error {
	tw := tar.NewWriter(w)
	mtime := commitTime(head)

	// same global header git archive writes, lets get-tar-commit-id work
	err := tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": head.Hash},
	})
	if err != nil {
		return err
	}

	dirs := newDirSet(prefix)
	writeDir := func(name string) error {
		return tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     name + "/",
			Mode:     0755,
			ModTime:  mtime,
			Uname:    "root",
			Gname:    "root",
		})
	}
	if err := writeDir(prefix); err != nil {
		return err
	}

	err = source.WalkTree(ctx, func(f vcs.TreeFile) error {
		name := path.Join(prefix, f.Path)
		for _, d := range dirs.missing(path.Dir(name)) {
			if err := writeDir(d); err != nil {
				return err
			}
		}

		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(f.Mode.Perm()),
			ModTime: mtime,
			Uname:   "root",
			Gname:   "root",
		}

		if f.LinkTarget != "" {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = f.LinkTarget
			return tw.WriteHeader(hdr)
		}

		hdr.Typeflag = tar.TypeReg
		hdr.Size = f.Size
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		return copyFile(tw, f)
	})
	if err != nil {
		return err
	}

	return tw.Close()
}

func writeZip(ctx context.Context, w io.Writer, source TreeSource, prefix string, head *vcs.Commit) error {
	zw := zip.NewWriter(w)
	mtime := commitTime(head)

	dirs := newDirSet(prefix)
	writeDir := func(name string) error {
		fh := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: mtime}
		fh.SetMode(os.ModeDir | 0755)
		_, err := zw.CreateHeader(fh)
		return err
	}
	if err := writeDir(prefix); err != nil {
		return err
	}

	err := source.WalkTree(ctx, func(f vcs.TreeFile) error {
		name := path.Join(prefix, f.Path)
		for _, d := range dirs.missing(path.Dir(name)) {
			if err := writeDir(d); err != nil {
				return err
			}
		}

		fh := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: mtime}
		if f.LinkTarget != "" {
			fh.Method = zip.Store
			fh.SetMode(os.ModeSymlink | 0777)
			fw, err := zw.CreateHeader(fh)
			if err != nil {
				return err
			}
			_, err = io.WriteString(fw, f.LinkTarget)
			return err
		}

		fh.SetMode(f.Mode.Perm())
		fw, err := zw.CreateHeader(fh)
		if err != nil {
			return err
		}
		return copyFile(fw, f)
	})
	if err != nil {
		return err
	}

	if err := zw.SetComment(head.Hash); err != nil {
		return err
	}
	return zw.Close()
}

func copyFile(w io.Writer, f vcs.TreeFile) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	return nil
}

// dirSet tracks directory entries already written below the root
type dirSet struct {
	root string
	seen map[string]bool
}

func newDirSet(root string) *dirSet {
	return &dirSet{root: root, seen: map[string]bool{root: true}}
}

// missing returns the not yet written ancestors of dir, outermost first
func (d *dirSet) missing(dir string) []string {
	var out []string
	for dir != d.root && dir != "." && dir != "/" && !d.seen[dir] {
		d.seen[dir] = true
		out = append([]string{dir}, out...)
		dir = path.Dir(dir)
	}
	return out
}

// commitTime falls back to the epoch for commits without a date
func commitTime(c *vcs.Commit) time.Time {
	if c == nil || c.When.IsZero() {
		return time.Unix(0, 0)
	}
	return c.When
}
