// Package identity works out the name, version and release of the package
// being built, either from literal spec fields or from git tags.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/specfile"
	"github.com/ralt/rpmci/internal/vcs"
	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"
)

const stage = "identity"

// placeholderValue stands in for unresolved placeholders while querying;
// rpm rejects '@' in Version and Release
const placeholderValue = "0"

var (
	trailingVersionRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)*)$`)
	leadingIntegerRe  = regexp.MustCompile(`^\s*([0-9]+)`)
)

// TagSource is the part of the repository the resolver needs
type TagSource interface {
	Tags() ([]string, error)
	HasTag(name string) (bool, error)
	LatestTag(ctx context.Context, skip func(string) bool) (string, error)
	Head() (*vcs.Commit, error)
	CreateTag(name string) error
}

// Resolver resolves the package identity. tags may be nil when the spec
// does not live in a git repository; placeholders then cannot be resolved.
type Resolver struct {
	querier specfile.Querier
	tags    TagSource
}

// NewResolver creates a Resolver
func NewResolver(q specfile.Querier, tags TagSource) *Resolver {
	return &Resolver{querier: q, tags: tags}
}

// Resolve runs name, version and release resolution in order and checks
// that the release has not been claimed yet
func (r *Resolver) Resolve(ctx context.Context, s *specfile.Spec) (*models.Identity, error) {
	name, err := r.ResolveName(ctx, s)
	if err != nil {
		return nil, err
	}

	version, err := r.ResolveVersion(ctx, s)
	if err != nil {
		return nil, err
	}

	release, err := r.ResolveRelease(ctx, s, version)
	if err != nil {
		return nil, err
	}

	if err := r.CheckReleaseUnused(version, release); err != nil {
		return nil, err
	}

	logrus.Infof("Resolved %s version %s release %s", name, version, release)

	return &models.Identity{
		Name:        name,
		Version:     version,
		BaseVersion: version,
		Release:     release,
	}, nil
}

// query asks the querier for tag on a copy of s in which the version and
// release placeholders still present are neutralized
func (r *Resolver) query(ctx context.Context, s *specfile.Spec, tag string) (string, error) {
	if s.Contains(specfile.TokenVersion) || s.Contains(specfile.TokenRelease) {
		s = s.Clone()
		s.Replace(specfile.TokenVersion, placeholderValue)
		s.Replace(specfile.TokenRelease, placeholderValue)
	}
	return r.querier.Query(ctx, s, tag)
}

// ResolveName returns the Name field
func (r *Resolver) ResolveName(ctx context.Context, s *specfile.Spec) (string, error) {
	name, err := r.query(ctx, s, "name")
	if err != nil {
		return "", models.NewError(models.ErrTool, stage, fmt.Errorf("failed to query name: %w", err))
	}
	if name == "" {
		return "", models.NewError(models.ErrResolution, stage, errors.New("package name is empty"))
	}
	return name, nil
}

// ResolveVersion returns the literal Version, or derives it from the most
// recent non-release tag when the field holds the version placeholder
func (r *Resolver) ResolveVersion(ctx context.Context, s *specfile.Spec) (string, error) {
	raw, _ := s.Directive("Version")
	if !strings.Contains(raw, specfile.TokenVersion) {
		version, err := r.query(ctx, s, "version")
		if err != nil {
			return "", models.NewError(models.ErrTool, stage, fmt.Errorf("failed to query version: %w", err))
		}
		if version == "" {
			return "", models.NewError(models.ErrResolution, stage, errors.New("package version is empty"))
		}
		return version, nil
	}

	if r.tags == nil {
		return "", models.NewError(models.ErrResolution, stage,
			fmt.Errorf("%s needs a git repository", specfile.TokenVersion))
	}

	tag, err := r.tags.LatestTag(ctx, isReleaseTag)
	if err != nil {
		return "", models.NewError(models.ErrResolution, stage, fmt.Errorf("failed to find version tag: %w", err))
	}

	version := VersionFromTag(tag)
	if version == "" {
		return "", models.NewError(models.ErrResolution, stage,
			fmt.Errorf("tag %q does not end in a version number", tag))
	}

	logrus.Infof("Version %s taken from tag %s", version, tag)
	s.Replace(specfile.TokenVersion, version)
	return version, nil
}

// ResolveRelease returns the literal Release (leading integer only), or
// the next unused release number for version when the field holds the
// release placeholder
func (r *Resolver) ResolveRelease(ctx context.Context, s *specfile.Spec, version string) (string, error) {
	raw, _ := s.Directive("Release")
	if !strings.Contains(raw, specfile.TokenRelease) {
		queried, err := r.query(ctx, s, "release")
		if err != nil {
			return "", models.NewError(models.ErrTool, stage, fmt.Errorf("failed to query release: %w", err))
		}
		release := LeadingInteger(queried)
		if release == "" {
			return "", models.NewError(models.ErrResolution, stage,
				fmt.Errorf("release %q does not start with a number", queried))
		}
		return release, nil
	}

	if r.tags == nil {
		return "", models.NewError(models.ErrResolution, stage,
			fmt.Errorf("%s needs a git repository", specfile.TokenRelease))
	}

	tags, err := r.tags.Tags()
	if err != nil {
		return "", models.NewError(models.ErrResolution, stage, fmt.Errorf("failed to list tags: %w", err))
	}

	release := strconv.Itoa(NextRelease(tags, version))
	logrus.Infof("Release %s is the next unused release of %s", release, version)
	s.Replace(specfile.TokenRelease, release)
	return release, nil
}

// CheckReleaseUnused fails when rpm-release-<version>-<release> exists
func (r *Resolver) CheckReleaseUnused(version, release string) error {
	if r.tags == nil {
		logrus.Warn("Not a git repository, release tags are not checked")
		return nil
	}

	tag := models.ReleaseTagName(version, release)
	exists, err := r.tags.HasTag(tag)
	if err != nil {
		return models.NewError(models.ErrResolution, stage, fmt.Errorf("failed to look up %s: %w", tag, err))
	}
	if exists {
		return models.NewError(models.ErrCollision, stage,
			fmt.Errorf("release %s-%s was already built (tag %s exists)", version, release, tag))
	}
	return nil
}

// TagRelease claims the release by tagging HEAD
func (r *Resolver) TagRelease(id *models.Identity) error {
	if r.tags == nil {
		return models.NewError(models.ErrResolution, stage, errors.New("cannot tag release outside a git repository"))
	}
	tag := id.ReleaseTag()
	if err := r.tags.CreateTag(tag); err != nil {
		return models.NewError(models.ErrResolution, stage, err)
	}
	logrus.Infof("Tagged HEAD as %s", tag)
	return nil
}

// VersionFromTag extracts the trailing dotted number of a tag name
func VersionFromTag(tag string) string {
	return trailingVersionRe.FindString(tag)
}

// LeadingInteger returns the leading digits of a release string
func LeadingInteger(s string) string {
	m := leadingIntegerRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// NextRelease returns one more than the highest release tagged for version,
// or 1 when none is
func NextRelease(tags []string, version string) int {
	prefix := models.ReleaseTagName(version, "")

	var releases []string
	for _, tag := range tags {
		rest, ok := strings.CutPrefix(tag, prefix)
		if !ok || rest == "" || LeadingInteger(rest) != rest {
			continue
		}
		releases = append(releases, rest)
	}
	if len(releases) == 0 {
		return 1
	}

	sort.Slice(releases, func(i, j int) bool {
		return rpmutils.Vercmp(releases[i], releases[j]) > 0
	})

	latest, err := strconv.Atoi(releases[0])
	if err != nil {
		return 1
	}
	return latest + 1
}

func isReleaseTag(name string) bool {
	return strings.HasPrefix(name, models.ReleaseTagPrefix)
}
