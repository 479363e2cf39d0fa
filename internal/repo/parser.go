package repo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/utils"
	"github.com/sassoftware/go-rpmutils"
)

// ParsePackage reads the header of an RPM file. The package checksum uses
// algo, the algorithm the repository metadata is written with.
func ParsePackage(path, algo string) (*models.Package, error) {
	checksum, size, err := utils.CalculateFileChecksum(path, algo)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := rpmutils.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM header: %w", err)
	}

	pkg := &models.Package{
		Name:         getString(hdr, rpmutils.NAME),
		Epoch:        getEpoch(hdr),
		Version:      getString(hdr, rpmutils.VERSION),
		Release:      getString(hdr, rpmutils.RELEASE),
		Architecture: getString(hdr, rpmutils.ARCH),
		Summary:      getString(hdr, rpmutils.SUMMARY),
		Description:  getString(hdr, rpmutils.DESCRIPTION),
		Packager:     getString(hdr, rpmutils.PACKAGER),
		URL:          getString(hdr, rpmutils.URL),
		License:      getString(hdr, rpmutils.LICENSE),
		Group:        getString(hdr, rpmutils.GROUP),
		SourceRPM:    getString(hdr, rpmutils.SOURCERPM),
		BuildTime:    getInt(hdr, rpmutils.BUILDTIME),
		Requires:     dependencies(getStrings(hdr, rpmutils.REQUIRENAME)),
		Provides:     dependencies(getStrings(hdr, rpmutils.PROVIDENAME)),

		Filename: path,
		Size:     size,
		Checksum: checksum,
	}

	if installed, err := hdr.GetUint64Fallback(rpmutils.SIZE, rpmutils.LONGSIZE); err == nil {
		pkg.InstalledSize = int64(installed)
	}

	rng := hdr.GetRange()
	pkg.HeaderStart = rng.Start
	pkg.HeaderEnd = rng.End

	if pkg.IsSource() {
		pkg.Architecture = "src"
	}
	if pkg.Name == "" {
		return nil, fmt.Errorf("package has no name")
	}

	return pkg, nil
}

func getString(hdr *rpmutils.RpmHeader, tag int) string {
	vals, err := hdr.GetStrings(tag)
	if err != nil || len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func getStrings(hdr *rpmutils.RpmHeader, tag int) []string {
	vals, err := hdr.GetStrings(tag)
	if err != nil {
		return nil
	}
	return vals
}

func getInt(hdr *rpmutils.RpmHeader, tag int) int64 {
	vals, err := hdr.GetUint64s(tag)
	if err != nil || len(vals) == 0 {
		return 0
	}
	return int64(vals[0])
}

func getEpoch(hdr *rpmutils.RpmHeader) string {
	if !hdr.HasTag(rpmutils.EPOCH) {
		return "0"
	}
	return strconv.FormatInt(getInt(hdr, rpmutils.EPOCH), 10)
}

// dependencies drops rpmlib() markers and duplicates, keeping order
func dependencies(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || strings.HasPrefix(n, "rpmlib(") || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
