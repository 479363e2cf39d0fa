package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ralt/rpmci/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables set by the CI server
const (
	EnvBuildNumber = "BUILD_NUMBER"
	EnvBuildTag    = "BUILD_TAG"
	EnvBuildURL    = "BUILD_URL"
	EnvJobName     = "JOB_NAME"
	EnvJobURL      = "JOB_URL"
)

// ciBindings maps config keys to the CI server variables that set them
var ciBindings = map[string]string{
	"ci.build-number": EnvBuildNumber,
	"ci.build-tag":    EnvBuildTag,
	"ci.build-url":    EnvBuildURL,
	"ci.job-name":     EnvJobName,
	"ci.job-url":      EnvJobURL,
}

// EnvPrefix prefixes the environment variables that override flags, e.g.
// RPMCI_GPG_KEY for --gpg-key
const EnvPrefix = "RPMCI"

// ConfigFileName is looked up in the working directory
const ConfigFileName = ".rpmci"

// newViper binds flags, environment and the optional config file. Flags win
// over environment, environment over the file.
func newViper(flags *pflag.FlagSet, workDir string) (*viper.Viper, error) {
	vip := viper.New()

	if err := vip.BindPFlags(flags); err != nil {
		return nil, err
	}

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()

	for key, env := range ciBindings {
		if err := vip.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	vip.SetConfigName(ConfigFileName)
	vip.SetConfigType("yaml")
	vip.AddConfigPath(workDir)
	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s.yaml: %w", ConfigFileName, err)
		}
	} else {
		logrus.Debugf("Using config file %s", vip.ConfigFileUsed())
	}

	return vip, nil
}

// buildConfig produces the run configuration for specPath
func buildConfig(flags *pflag.FlagSet, specPath string) (models.Config, error) {
	abs, err := filepath.Abs(specPath)
	if err != nil {
		return models.Config{}, usageError(err)
	}
	if err := checkReadable(abs); err != nil {
		return models.Config{}, err
	}

	workDir, _ := flags.GetString("workdir")
	if workDir == "" {
		workDir = filepath.Dir(abs)
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return models.Config{}, usageError(err)
	}

	vip, err := newViper(flags, workDir)
	if err != nil {
		return models.Config{}, usageError(err)
	}

	cfg := models.Config{
		SpecPath:      abs,
		WorkDir:       workDir,
		MockConfig:    vip.GetString("mock"),
		Snapshot:      vip.GetBool("snap"),
		Debug:         vip.GetBool("debug"),
		TagRelease:    vip.GetBool("tag-release"),
		ResultRoot:    vip.GetString("result-root"),
		UseCreaterepo: vip.GetBool("createrepo"),
		GPGKeyPath:    vip.GetString("gpg-key"),
		GPGPassphrase: vip.GetString("gpg-passphrase"),
		CI:            ciEnv(vip),
		Now:           time.Now(),
	}
	if cfg.MockConfig == "" {
		cfg.MockConfig = models.DefaultMockConfig
	}

	return cfg, nil
}

func ciEnv(vip *viper.Viper) models.CIEnv {
	return models.CIEnv{
		BuildNumber: vip.GetString("ci.build-number"),
		BuildTag:    vip.GetString("ci.build-tag"),
		BuildURL:    vip.GetString("ci.build-url"),
		JobName:     vip.GetString("ci.job-name"),
		JobURL:      vip.GetString("ci.job-url"),
	}
}

// checkReadable fails with a usage error unless path is a readable file
func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return usageError(fmt.Errorf("cannot read spec file: %w", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return usageError(err)
	}
	if info.IsDir() {
		return usageError(fmt.Errorf("%s is a directory", path))
	}
	return nil
}

func usageError(err error) error {
	return models.NewError(models.ErrUsage, "", err)
}
