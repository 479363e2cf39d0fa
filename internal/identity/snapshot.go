package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/specfile"
	"github.com/sirupsen/logrus"
)

// SnapshotSuffix builds "snap.<UTC timestamp>.git.<short hash>"
func SnapshotSuffix(now time.Time, shortHash string) string {
	return fmt.Sprintf("snap.%s.git.%s", now.UTC().Format("20060102150405"), shortHash)
}

// Snapshot appends the snapshot suffix to the Version field and renames the
// source archive in dir to match. archive is the file name produced by the
// archive stage; an empty or missing archive is only logged.
func (r *Resolver) Snapshot(s *specfile.Spec, id *models.Identity, now time.Time, dir, archive string) (string, error) {
	if r.tags == nil {
		return "", models.NewError(models.ErrResolution, "snapshot", errors.New("snapshot builds need a git repository"))
	}

	head, err := r.tags.Head()
	if err != nil {
		return "", models.NewError(models.ErrResolution, "snapshot", err)
	}

	suffix := SnapshotSuffix(now, head.Short)
	if err := ApplySnapshot(s, id, suffix); err != nil {
		return "", err
	}

	if archive == "" {
		return "", nil
	}
	return RenameSnapshotArchive(dir, archive, id)
}

// ApplySnapshot rewrites the Version field to <version>.<suffix>
func ApplySnapshot(s *specfile.Spec, id *models.Identity, suffix string) error {
	raw, ok := s.Directive("Version")
	if !ok {
		return models.NewError(models.ErrResolution, "snapshot", errors.New("spec file has no Version field"))
	}

	s.SetDirective("Version", strings.TrimSpace(raw)+"."+suffix)
	id.Snapshot = suffix
	id.Version = id.BaseVersion + "." + suffix

	logrus.Infof("Snapshot version %s", id.Version)
	return nil
}

// RenameSnapshotArchive renames <name>-<base><sfx> to <name>-<version><sfx>
// and returns the new file name
func RenameSnapshotArchive(dir, archive string, id *models.Identity) (string, error) {
	prefix := id.Name + "-" + id.BaseVersion
	sfx, ok := strings.CutPrefix(archive, prefix)
	if !ok {
		logrus.Warnf("Source %s does not start with %s, not renaming it", archive, prefix)
		return archive, nil
	}

	renamed := id.NameVersion() + sfx
	oldPath := filepath.Join(dir, archive)
	if _, err := os.Stat(oldPath); err != nil {
		logrus.Warnf("Source archive %s is missing, not renaming it", archive)
		return archive, nil
	}

	if err := os.Rename(oldPath, filepath.Join(dir, renamed)); err != nil {
		return "", models.NewError(models.ErrFileOp, "snapshot", fmt.Errorf("failed to rename %s: %w", archive, err))
	}

	logrus.Infof("Renamed %s to %s", archive, renamed)
	return renamed, nil
}
