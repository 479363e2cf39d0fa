package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmci [flags] <spec-file>",
		Short: "Build an RPM from a spec file in mock and publish it as a yum repository",
		Long: `rpmci builds one spec file the way a CI job needs it:

  - @VERSION@ and @RELEASE@ are resolved from git tags
  - @BUILD_NUMBER@, @BUILD_TAG@, @BUILD_URL@ and @JOB_NAME@ come from the CI environment
  - a missing source archive is created from the HEAD commit
  - the source package is rebuilt in mock
  - the result directory is indexed as a yum repository with a .repo file

Release builds are recorded with rpm-release-<version>-<release> tags, and a
release that already has a tag is never built again.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := buildConfig(cmd.Flags(), args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logrus.Infof("Building %s in %s", filepath.Base(config.SpecPath), config.MockConfig)
			logrus.Debugf("Configuration: %+v", redact(config))

			p, err := pipeline.New(config, execx.NewExecRunner(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			result, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Build flags
	rootCmd.Flags().StringP("mock", "m", models.DefaultMockConfig, "Mock configuration to build in")
	rootCmd.Flags().BoolP("snap", "s", false, "Build a snapshot version from the HEAD commit")
	rootCmd.Flags().BoolP("debug", "d", false, "Keep the mock chroot after a failed build")
	rootCmd.Flags().String("workdir", "", "Working directory (defaults to the directory of the spec file)")
	rootCmd.Flags().String("result-root", "result", "Directory under the working directory that receives result/<mock-config>")
	rootCmd.Flags().Bool("tag-release", false, "Create the rpm-release-<version>-<release> tag after a successful release build")

	// Publishing flags
	addPublishFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(NewPublishCmd())

	return rootCmd
}

// addPublishFlags registers the repository flags shared with publish
func addPublishFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("createrepo", false, "Index with the external createrepo tool instead of the built-in indexer")
	cmd.Flags().StringP("gpg-key", "k", "", "Path to a GPG private key used to sign repomd.xml")
	cmd.Flags().StringP("gpg-passphrase", "p", "", "GPG key passphrase")
}

func redact(config models.Config) models.Config {
	if config.GPGPassphrase != "" {
		config.GPGPassphrase = "***"
	}
	return config
}

func printSummary(w io.Writer, result *pipeline.Result) {
	green := color.New(color.FgGreen, color.Bold)
	id := result.Identity

	fmt.Fprintf(w, "\n%s %s-%s-%s\n", green.Sprint("Built"), id.Name, id.Version, id.Release)
	fmt.Fprintf(w, "  source package: %s\n", result.SRPM)
	fmt.Fprintf(w, "  repository:     %s\n", result.ResultDir)
	fmt.Fprintf(w, "  repo file:      %s\n", result.RepoFile)
	if result.Tagged {
		fmt.Fprintf(w, "  tagged:         %s\n", color.New(color.FgCyan).Sprint(id.ReleaseTag()))
	}
}
