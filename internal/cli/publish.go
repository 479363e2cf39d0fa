package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/pipeline"
	"github.com/ralt/rpmci/internal/repo"
	"github.com/spf13/cobra"
)

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <dir>",
		Short: "Index an existing directory of packages as a yum repository",
		Long: `Scans a directory (for example a previous mock result directory) for
RPM packages, writes repodata/ and a .repo file into it, and optionally signs
repomd.xml.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, dir, err := buildPublishConfig(cmd, args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			s, err := pipeline.NewSigner(config)
			if err != nil {
				return err
			}

			publisher := repo.NewPublisher(execx.NewExecRunner(), s)
			publisher.Out = cmd.OutOrStdout()

			_, err = publisher.Publish(cmd.Context(), pipeline.RepositoryConfig(config, dir, ""))
			return err
		},
	}

	cmd.Flags().StringP("mock", "m", models.DefaultMockConfig, "Mock configuration the packages were built in")
	addPublishFlags(cmd)

	return cmd
}

// buildPublishConfig resolves dir and the configuration. The base URL is
// computed relative to the current directory, the CI workspace.
func buildPublishConfig(cmd *cobra.Command, dir string) (models.Config, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return models.Config{}, "", usageError(err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return models.Config{}, "", usageError(err)
	}

	vip, err := newViper(cmd.Flags(), workDir)
	if err != nil {
		return models.Config{}, "", usageError(err)
	}

	cfg := models.Config{
		WorkDir:       workDir,
		MockConfig:    vip.GetString("mock"),
		UseCreaterepo: vip.GetBool("createrepo"),
		GPGKeyPath:    vip.GetString("gpg-key"),
		GPGPassphrase: vip.GetString("gpg-passphrase"),
		CI:            ciEnv(vip),
		Now:           time.Now(),
	}
	if cfg.MockConfig == "" {
		cfg.MockConfig = models.DefaultMockConfig
	}
	return cfg, abs, nil
}
