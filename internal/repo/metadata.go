package repo

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/ralt/rpmci/internal/models"
	"github.com/ralt/rpmci/internal/utils"
)

const (
	nsCommon = "http://linux.duke.edu/metadata/common"
	nsRpm    = "http://linux.duke.edu/metadata/rpm"
	nsRepo   = "http://linux.duke.edu/metadata/repo"
)

// XML structures for primary.xml

type metadata struct {
	XMLName       xml.Name `xml:"metadata"`
	Xmlns         string   `xml:"xmlns,attr"`
	XmlnsRpm      string   `xml:"xmlns:rpm,attr"`
	PackagesCount int      `xml:"packages,attr"`
	Packages      []xmlPkg `xml:"package"`
}

type xmlPkg struct {
	Type        string      `xml:"type,attr"`
	Name        string      `xml:"name"`
	Arch        string      `xml:"arch"`
	Version     xmlVersion  `xml:"version"`
	Checksum    xmlChecksum `xml:"checksum"`
	Summary     string      `xml:"summary"`
	Description string      `xml:"description"`
	Packager    string      `xml:"packager"`
	URL         string      `xml:"url"`
	Time        xmlTime     `xml:"time"`
	Size        xmlSize     `xml:"size"`
	Location    xmlLocation `xml:"location"`
	Format      xmlFormat   `xml:"format"`
}

type xmlVersion struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type xmlChecksum struct {
	Type  string `xml:"type,attr"`
	Pkgid string `xml:"pkgid,attr"`
	Value string `xml:",chardata"`
}

type xmlTime struct {
	File  int64 `xml:"file,attr"`
	Build int64 `xml:"build,attr"`
}

type xmlSize struct {
	Package   int64 `xml:"package,attr"`
	Installed int64 `xml:"installed,attr"`
	Archive   int64 `xml:"archive,attr"`
}

type xmlLocation struct {
	Href string `xml:"href,attr"`
}

type xmlFormat struct {
	License     string         `xml:"rpm:license"`
	Group       string         `xml:"rpm:group"`
	SourceRPM   string         `xml:"rpm:sourcerpm"`
	HeaderRange xmlHeaderRange `xml:"rpm:header-range"`
	Provides    *xmlEntryList  `xml:"rpm:provides,omitempty"`
	Requires    *xmlEntryList  `xml:"rpm:requires,omitempty"`
}

type xmlHeaderRange struct {
	Start int `xml:"start,attr"`
	End   int `xml:"end,attr"`
}

type xmlEntryList struct {
	Entries []xmlEntry `xml:"rpm:entry"`
}

type xmlEntry struct {
	Name string `xml:"name,attr"`
}

func entryList(names []string) *xmlEntryList {
	if len(names) == 0 {
		return nil
	}
	list := &xmlEntryList{}
	for _, n := range names {
		list.Entries = append(list.Entries, xmlEntry{Name: n})
	}
	return list
}

// GeneratePrimaryXML renders primary.xml for packages whose Filename is
// relative to the repository root
func GeneratePrimaryXML(packages []models.Package, algo string, fileTime int64) ([]byte, error) {
	xmlPackages := make([]xmlPkg, 0, len(packages))

	for _, pkg := range packages {
		epoch := pkg.Epoch
		if epoch == "" {
			epoch = "0"
		}

		xmlPackages = append(xmlPackages, xmlPkg{
			Type: "rpm",
			Name: pkg.Name,
			Arch: pkg.Architecture,
			Version: xmlVersion{
				Epoch: epoch,
				Ver:   pkg.Version,
				Rel:   pkg.Release,
			},
			Checksum: xmlChecksum{
				Type:  algo,
				Pkgid: "YES",
				Value: pkg.Checksum,
			},
			Summary:     pkg.Summary,
			Description: pkg.Description,
			Packager:    pkg.Packager,
			URL:         pkg.URL,
			Time: xmlTime{
				File:  fileTime,
				Build: pkg.BuildTime,
			},
			Size: xmlSize{
				Package:   pkg.Size,
				Installed: pkg.InstalledSize,
				Archive:   pkg.Size,
			},
			Location: xmlLocation{
				Href: pkg.Filename,
			},
			Format: xmlFormat{
				License:   pkg.License,
				Group:     pkg.Group,
				SourceRPM: pkg.SourceRPM,
				HeaderRange: xmlHeaderRange{
					Start: pkg.HeaderStart,
					End:   pkg.HeaderEnd,
				},
				Provides: entryList(pkg.Provides),
				Requires: entryList(pkg.Requires),
			},
		})
	}

	meta := metadata{
		Xmlns:         nsCommon,
		XmlnsRpm:      nsRpm,
		PackagesCount: len(packages),
		Packages:      xmlPackages,
	}

	xmlBytes, err := xml.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}

type repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Xmlns    string       `xml:"xmlns,attr"`
	XmlnsRpm string       `xml:"xmlns:rpm,attr"`
	Revision int64        `xml:"revision"`
	Data     []repomdData `xml:"data"`
}

type repomdData struct {
	Type         string         `xml:"type,attr"`
	Checksum     repomdChecksum `xml:"checksum"`
	OpenChecksum repomdChecksum `xml:"open-checksum"`
	Location     repomdLocation `xml:"location"`
	Timestamp    int64          `xml:"timestamp"`
	Size         int64          `xml:"size"`
	OpenSize     int64          `xml:"open-size"`
}

type repomdChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type repomdLocation struct {
	Href string `xml:"href,attr"`
}

// metadataFile is one compressed file under repodata/
type metadataFile struct {
	Type         string
	Href         string
	Checksum     string
	OpenChecksum string
	Size         int64
	OpenSize     int64
}

// compressMetadata gzips data and names it <checksum>-<name>.xml.gz
func compressMetadata(name string, data []byte, algo string) (*metadataFile, []byte, error) {
	gz, err := utils.GzipCompress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compress %s.xml: %w", name, err)
	}

	sum, err := utils.CalculateChecksum(gz, algo)
	if err != nil {
		return nil, nil, err
	}
	openSum, err := utils.CalculateChecksum(data, algo)
	if err != nil {
		return nil, nil, err
	}

	return &metadataFile{
		Type:         name,
		Href:         fmt.Sprintf("repodata/%s-%s.xml.gz", sum, name),
		Checksum:     sum,
		OpenChecksum: openSum,
		Size:         int64(len(gz)),
		OpenSize:     int64(len(data)),
	}, gz, nil
}

// generateRepomdXML renders repomd.xml referencing the given metadata files
func generateRepomdXML(files []metadataFile, algo string, now time.Time) ([]byte, error) {
	md := repomd{
		Xmlns:    nsRepo,
		XmlnsRpm: nsRpm,
		Revision: now.Unix(),
	}

	for _, f := range files {
		md.Data = append(md.Data, repomdData{
			Type:         f.Type,
			Checksum:     repomdChecksum{Type: algo, Value: f.Checksum},
			OpenChecksum: repomdChecksum{Type: algo, Value: f.OpenChecksum},
			Location:     repomdLocation{Href: f.Href},
			Timestamp:    now.Unix(),
			Size:         f.Size,
			OpenSize:     f.OpenSize,
		})
	}

	xmlBytes, err := xml.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}
