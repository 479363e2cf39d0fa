// Package mock drives rpmlint, rpmbuild and mock to turn a spec file into
// binary packages in a result directory.
package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/utils"
	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"
)

const stage = "build"

// Tool names
const (
	RPMLint  = "rpmlint"
	RPMBuild = "rpmbuild"
	Mock     = "mock"
)

// Driver runs the build tools for one mock configuration
type Driver struct {
	runner     execx.Runner
	target     Target
	mockConfig string
	workDir    string
	resultDir  string
	debug      bool

	// ReadName returns the package name stored in an SRPM header
	ReadName func(path string) (string, error)
}

// NewDriver creates a driver for the given run configuration
func NewDriver(runner execx.Runner, cfg models.Config) *Driver {
	return &Driver{
		runner:     runner,
		target:     TargetFor(cfg.MockConfig),
		mockConfig: cfg.MockConfig,
		workDir:    cfg.WorkDir,
		resultDir:  ResultDir(cfg),
		debug:      cfg.Debug,
		ReadName:   srpmName,
	}
}

// ResultDir returns <workdir>/<result-root>/<mock-config>
func ResultDir(cfg models.Config) string {
	root := cfg.ResultRoot
	if root == "" {
		root = "result"
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(cfg.WorkDir, root)
	}
	return filepath.Join(root, cfg.MockConfig)
}

// Target returns the build target selected from the mock configuration
func (d *Driver) Target() Target {
	return d.target
}

// ResultDir returns the directory mock writes packages to
func (d *Driver) ResultDir() string {
	return d.resultDir
}

// SRPMDir returns the directory rpmbuild writes the source package to
func (d *Driver) SRPMDir() string {
	return filepath.Join(d.workDir, "SRPMS")
}

// Build lints the spec, builds the SRPM and rebuilds it in mock. It returns
// the path of the source package.
func (d *Driver) Build(ctx context.Context, specPath string, id *models.Identity) (string, error) {
	d.Lint(ctx, specPath)

	if err := d.BuildSRPM(ctx, specPath); err != nil {
		return "", err
	}

	srpm, err := d.FindSRPM(id)
	if err != nil {
		return "", err
	}

	if err := d.Rebuild(ctx, srpm); err != nil {
		return srpm, err
	}
	return srpm, nil
}

// Lint runs rpmlint on the spec file. Findings are logged and never stop
// the build.
func (d *Driver) Lint(ctx context.Context, specPath string) {
	res, err := d.runner.Run(ctx, execx.Command{
		Name: RPMLint,
		Args: []string{specPath},
		Dir:  d.workDir,
	})
	if err != nil {
		logrus.Warnf("rpmlint reported problems: %v", err)
		if res != nil && res.Stdout != "" {
			for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
				logrus.Warn(line)
			}
		}
		return
	}
	logrus.Info("rpmlint passed")
}

// BuildSRPM runs rpmbuild -bs with the working directory as source and
// spec directory
func (d *Driver) BuildSRPM(ctx context.Context, specPath string) error {
	defines := []Define{
		{Name: "_topdir", Value: d.workDir},
		{Name: "_sourcedir", Value: d.workDir},
		{Name: "_specdir", Value: d.workDir},
		{Name: "_srcrpmdir", Value: d.SRPMDir()},
	}
	defines = append(defines, d.target.BuildDefines()...)

	args := []string{"-bs", "--nodeps"}
	args = append(args, defineArgs(defines)...)
	args = append(args, specPath)

	logrus.Infof("Building source package for %s", d.target)
	if _, err := d.runner.Run(ctx, execx.Command{
		Name:   RPMBuild,
		Args:   args,
		Dir:    d.workDir,
		Stream: true,
	}); err != nil {
		return models.NewError(models.ErrTool, stage, err)
	}
	return nil
}

// SRPMCandidates returns the paths the source package may have been written
// to, release name first
func (d *Driver) SRPMCandidates(id *models.Identity) []string {
	name := func(version string) string {
		return filepath.Join(d.SRPMDir(), fmt.Sprintf("%s-%s-%s%s.src.rpm", id.Name, version, id.Release, d.target.Dist()))
	}

	base := id.BaseVersion
	if base == "" {
		base = id.Version
	}
	candidates := []string{name(base)}
	if id.Version != base {
		candidates = append(candidates, name(id.Version))
	}
	return candidates
}

// FindSRPM locates the source package produced by BuildSRPM and checks its
// header names the package being built
func (d *Driver) FindSRPM(id *models.Identity) (string, error) {
	candidates := d.SRPMCandidates(id)
	for _, path := range candidates {
		if !utils.FileExists(path) {
			continue
		}

		name, err := d.ReadName(path)
		if err != nil {
			return "", models.NewError(models.ErrBuild, stage, fmt.Errorf("failed to read %s: %w", path, err))
		}
		if name != id.Name {
			return "", models.NewError(models.ErrBuild, stage,
				fmt.Errorf("%s contains package %q, expected %q", filepath.Base(path), name, id.Name))
		}

		logrus.Infof("Source package: %s", path)
		return path, nil
	}

	return "", models.NewError(models.ErrBuild, stage,
		fmt.Errorf("no source package found (looked for %s)", strings.Join(candidates, ", ")))
}

// Rebuild recreates the result directory and rebuilds srpm in mock
func (d *Driver) Rebuild(ctx context.Context, srpm string) error {
	if err := utils.RecreateDir(d.resultDir); err != nil {
		return models.NewError(models.ErrFileOp, stage, err)
	}

	args := []string{"-r", d.mockConfig, "--resultdir", d.resultDir}
	if d.debug {
		args = append(args, "--no-cleanup-after")
	}
	args = append(args, defineArgs(d.target.BuildDefines())...)
	args = append(args, "--rebuild", srpm)

	logrus.Infof("Rebuilding %s in %s", filepath.Base(srpm), d.mockConfig)
	if _, err := d.runner.Run(ctx, execx.Command{
		Name:   Mock,
		Args:   args,
		Dir:    d.workDir,
		Stream: true,
	}); err != nil {
		return models.NewError(models.ErrTool, stage, err)
	}
	return nil
}

func defineArgs(defines []Define) []string {
	args := make([]string, 0, 2*len(defines))
	for _, d := range defines {
		args = append(args, "--define", d.Arg())
	}
	return args
}

func srpmName(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hdr, err := rpmutils.ReadHeader(f)
	if err != nil {
		return "", err
	}
	return hdr.GetString(rpmutils.NAME)
}
