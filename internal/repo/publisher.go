// Package repo turns a directory of built packages into a yum repository
// and writes the matching .repo file.
package repo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/ralt/rpmci/internal/execx"
	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/scanner"
	"github.com/ralt/rpmci/internal/signer"
	"github.com/ralt/rpmci/internal/utils"
	"github.com/sirupsen/logrus"
)

const stage = "publish"

// Publisher indexes a result directory in place
type Publisher struct {
	runner  execx.Runner
	signer  signer.Signer
	scanner scanner.Scanner
	now     func() time.Time

	// Parse reads package metadata, ParsePackage by default
	Parse func(path, algo string) (*models.Package, error)

	// Out receives the echoed .repo file
	Out io.Writer
}

// NewPublisher creates a publisher. s may be nil for unsigned repositories.
func NewPublisher(runner execx.Runner, s signer.Signer) *Publisher {
	return &Publisher{
		runner:  runner,
		signer:  s,
		scanner: scanner.NewFileSystemScanner(),
		now:     time.Now,
		Parse:   ParsePackage,
		Out:     os.Stdout,
	}
}

// Publish writes repodata/ and the .repo file into config.Dir. It returns
// the path of the .repo file.
func (p *Publisher) Publish(ctx context.Context, config *models.RepositoryConfig) (string, error) {
	info, err := os.Stat(config.Dir)
	if err != nil {
		return "", models.NewError(models.ErrFileOp, stage, err)
	}
	if !info.IsDir() {
		return "", models.NewError(models.ErrFileOp, stage, fmt.Errorf("%s is not a directory", config.Dir))
	}

	if config.Createrepo {
		logrus.Infof("Indexing %s with %s", config.Dir, Createrepo)
		err = runCreaterepo(ctx, p.runner, config.Dir, config.Checksum)
	} else {
		err = p.index(ctx, config)
	}
	if err != nil {
		return "", err
	}

	if p.signer != nil {
		if err := p.sign(config.Dir); err != nil {
			return "", err
		}
	}

	return p.writeRepoFile(config)
}

// index scans dir for packages and writes primary.xml and repomd.xml
func (p *Publisher) index(ctx context.Context, config *models.RepositoryConfig) error {
	logrus.Infof("Indexing %s", config.Dir)

	algo := config.Checksum
	if algo == "" {
		algo = utils.ChecksumSHA256
	}

	scanned, err := p.scanner.Scan(ctx, config.Dir)
	if err != nil {
		return models.NewError(models.ErrIndex, stage, err)
	}

	packages := make([]models.Package, 0, len(scanned))
	for _, sp := range scanned {
		pkg, err := p.Parse(sp.Path, algo)
		if err != nil {
			return models.NewError(models.ErrIndex, stage, fmt.Errorf("failed to parse %s: %w", sp.Path, err))
		}

		rel, err := filepath.Rel(config.Dir, sp.Path)
		if err != nil {
			return models.NewError(models.ErrIndex, stage, err)
		}
		pkg.Filename = filepath.ToSlash(rel)

		logrus.Debugf("Indexed %s (%s)", pkg.NEVRA(), pkg.Filename)
		packages = append(packages, *pkg)
	}

	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Filename < packages[j].Filename
	})

	now := p.now()
	primaryXML, err := GeneratePrimaryXML(packages, algo, now.Unix())
	if err != nil {
		return models.NewError(models.ErrIndex, stage, fmt.Errorf("failed to generate primary.xml: %w", err))
	}

	primary, primaryGz, err := compressMetadata("primary", primaryXML, algo)
	if err != nil {
		return models.NewError(models.ErrIndex, stage, err)
	}

	repomdXML, err := generateRepomdXML([]metadataFile{*primary}, algo, now)
	if err != nil {
		return models.NewError(models.ErrIndex, stage, fmt.Errorf("failed to generate repomd.xml: %w", err))
	}

	repodataDir := filepath.Join(config.Dir, "repodata")
	if err := utils.RecreateDir(repodataDir); err != nil {
		return models.NewError(models.ErrFileOp, stage, err)
	}
	if err := utils.WriteFile(filepath.Join(config.Dir, primary.Href), primaryGz, 0644); err != nil {
		return models.NewError(models.ErrFileOp, stage, fmt.Errorf("failed to write primary.xml.gz: %w", err))
	}
	if err := utils.WriteFile(filepath.Join(repodataDir, "repomd.xml"), repomdXML, 0644); err != nil {
		return models.NewError(models.ErrFileOp, stage, fmt.Errorf("failed to write repomd.xml: %w", err))
	}

	logrus.Infof("Repository metadata written (%d packages, %s checksums)", len(packages), algo)
	return nil
}

// sign writes repodata/repomd.xml.asc and publishes the public key
func (p *Publisher) sign(dir string) error {
	repomdPath := filepath.Join(dir, "repodata", "repomd.xml")
	repomdXML, err := os.ReadFile(repomdPath)
	if err != nil {
		return models.NewError(models.ErrSigning, stage, err)
	}

	signature, err := p.signer.SignDetached(repomdXML)
	if err != nil {
		return models.NewError(models.ErrSigning, stage, fmt.Errorf("failed to sign repomd.xml: %w", err))
	}
	if err := utils.WriteFile(repomdPath+".asc", signature, 0644); err != nil {
		return models.NewError(models.ErrFileOp, stage, fmt.Errorf("failed to write repomd.xml.asc: %w", err))
	}

	pubKey, err := p.signer.GetPublicKey()
	if err != nil {
		return models.NewError(models.ErrSigning, stage, err)
	}
	if err := utils.WriteFile(filepath.Join(dir, PublicKeyFile), pubKey, 0644); err != nil {
		return models.NewError(models.ErrFileOp, stage, err)
	}

	logrus.Info("Repository metadata signed")
	return nil
}

func (p *Publisher) writeRepoFile(config *models.RepositoryConfig) (string, error) {
	content := GenerateRepoFile(config, p.signer != nil)

	path := filepath.Join(config.Dir, repoIDFor(config)+".repo")
	if err := utils.WriteFile(path, content, 0644); err != nil {
		return "", models.NewError(models.ErrFileOp, stage, fmt.Errorf("failed to write .repo file: %w", err))
	}
	logrus.Infof("Repository configuration file written to: %s", path)

	if p.Out != nil {
		color.New(color.FgCyan).Fprint(p.Out, string(content))
	}
	return path, nil
}
