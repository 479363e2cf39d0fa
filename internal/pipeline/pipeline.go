// Package pipeline runs the stages of one build in order: identity
// resolution, template expansion, source archive, snapshot rename, mock
// build and repository publishing.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ralt/rpmci/internal/archive"
	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/identity"
	"github.com/ralt/rpmci/internal/mock"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/repo"
	"github.com/ralt/rpmci/internal/signer"
	"github.com/ralt/rpmci/internal/specfile"
	"github.com/ralt/rpmci/internal/vcs"
	"github.com/sirupsen/logrus"
)

// Pipeline holds everything one run needs
type Pipeline struct {
	config    models.Config
	querier   specfile.Querier
	git       *vcs.GitRepo
	driver    *mock.Driver
	publisher *repo.Publisher
}

// Result summarizes a successful run
type Result struct {
	Identity  *models.Identity
	Archive   string
	SRPM      string
	ResultDir string
	RepoFile  string
	Tagged    bool
}

// New prepares a pipeline. The git repository is looked up from the
// working directory; running outside one only disables placeholders,
// archive synthesis and snapshots.
func New(config models.Config, runner execx.Runner, out io.Writer) (*Pipeline, error) {
	git, err := vcs.Open(config.WorkDir)
	if err != nil {
		logrus.Warnf("%s is not in a git repository: %v", config.WorkDir, err)
		git = nil
	}

	driver := mock.NewDriver(runner, config)

	s, err := NewSigner(config)
	if err != nil {
		return nil, err
	}

	publisher := repo.NewPublisher(runner, s)
	publisher.Out = out

	return &Pipeline{
		config:    config,
		querier:   specfile.NewQuerier(runner, queryDefines(driver.Target())),
		git:       git,
		driver:    driver,
		publisher: publisher,
	}, nil
}

// queryDefines returns the macros spec queries are evaluated with, the same
// dist the source package is built with
func queryDefines(t mock.Target) map[string]string {
	defines := make(map[string]string)
	for _, d := range t.BuildDefines() {
		if d.Name == "dist" {
			defines[d.Name] = d.Value
		}
	}
	return defines
}

// NewSigner loads the repository signing key, if one is configured
func NewSigner(config models.Config) (signer.Signer, error) {
	if config.GPGKeyPath == "" {
		return nil, nil
	}
	gpg, err := signer.NewGPGSigner(config.GPGKeyPath, config.GPGPassphrase)
	if err != nil {
		return nil, models.NewError(models.ErrSigning, "setup", fmt.Errorf("failed to initialize GPG signer: %w", err))
	}
	logrus.Info("GPG signer initialized")
	return gpg, nil
}

// tagSource returns the repository as a TagSource, or nil outside git
func (p *Pipeline) tagSource() identity.TagSource {
	if p.git == nil {
		return nil
	}
	return p.git
}

func (p *Pipeline) treeSource() archive.TreeSource {
	if p.git == nil {
		return nil
	}
	return p.git
}

// Run executes every stage. Each stage gates the next, except that an
// unusable source archive name is only logged: the build then fails at the
// source package check.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.config

	spec, err := specfile.Load(cfg.SpecPath)
	if err != nil {
		return nil, models.NewError(models.ErrFileOp, "load", err)
	}

	resolver := identity.NewResolver(p.querier, p.tagSource())
	id, err := resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	if n := specfile.ExpandBuildInfo(spec, cfg.CI); n > 0 {
		logrus.Infof("Expanded %d build placeholder(s)", n)
	}

	source, err := p.querier.Source(ctx, spec)
	if err != nil {
		return nil, models.NewError(models.ErrTool, "archive", fmt.Errorf("failed to query source: %w", err))
	}
	archiveName := specfile.SourceFilename(source)

	builder := archive.NewBuilder(p.treeSource(), cfg.WorkDir)
	if _, err := builder.Ensure(ctx, id, archiveName); err != nil {
		if !models.IsType(err, models.ErrArchiveFormat) {
			return nil, err
		}
		logrus.Errorf("Source archive not created: %v", err)
	}

	if cfg.Snapshot {
		archiveName, err = resolver.Snapshot(spec, id, cfg.Now, cfg.WorkDir, archiveName)
		if err != nil {
			return nil, err
		}
	}

	if err := spec.Save(); err != nil {
		return nil, models.NewError(models.ErrFileOp, "build", err)
	}

	srpm, err := p.driver.Build(ctx, spec.Path, id)
	if err != nil {
		return nil, err
	}

	repoConfig := p.repositoryConfig(id)
	repoFile, err := p.publisher.Publish(ctx, repoConfig)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Identity:  id,
		Archive:   archiveName,
		SRPM:      srpm,
		ResultDir: p.driver.ResultDir(),
		RepoFile:  repoFile,
	}

	if cfg.TagRelease {
		if cfg.Snapshot {
			logrus.Info("Snapshot build, release tag not created")
		} else {
			if err := resolver.TagRelease(id); err != nil {
				return result, err
			}
			result.Tagged = true
		}
	}

	return result, nil
}

// repositoryConfig describes the result directory as a yum repository
func (p *Pipeline) repositoryConfig(id *models.Identity) *models.RepositoryConfig {
	return RepositoryConfig(p.config, p.driver.ResultDir(), id.Name)
}

// RepositoryConfig builds the publishing settings for dir. The repository is
// named after the CI job, or after the package outside CI.
func RepositoryConfig(cfg models.Config, dir, pkgName string) *models.RepositoryConfig {
	name := cfg.CI.JobName
	if name == "" {
		name = pkgName
	}
	if name == "" {
		name = filepath.Base(dir)
	}

	return &models.RepositoryConfig{
		Dir:        dir,
		RepoID:     repo.RepoID(name, cfg.MockConfig),
		Name:       fmt.Sprintf("%s (%s)", name, cfg.MockConfig),
		BaseURL:    repo.BaseURL(cfg.CI.JobURL, cfg.WorkDir, dir),
		Checksum:   mock.TargetFor(cfg.MockConfig).Checksum(),
		Createrepo: cfg.UseCreaterepo,
	}
}
