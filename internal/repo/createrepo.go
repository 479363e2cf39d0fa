package repo

import (
	"context"

	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/utils"
)

// Createrepo is the external indexer used with --createrepo
const Createrepo = "createrepo"

// runCreaterepo indexes dir with the createrepo tool. The checksum flag is
// only passed when it differs from the tool default.
func runCreaterepo(ctx context.Context, runner execx.Runner, dir, checksum string) error {
	var args []string
	if checksum != "" && checksum != utils.ChecksumSHA256 {
		args = append(args, "-s", checksum)
	}
	args = append(args, dir)

	if _, err := runner.Run(ctx, execx.Command{
		Name:   Createrepo,
		Args:   args,
		Stream: true,
	}); err != nil {
		return models.NewError(models.ErrTool, stage, err)
	}
	return nil
}
