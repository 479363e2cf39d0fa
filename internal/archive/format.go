package archive

import (
	"strings"

	"github.com/ralt/rpmci/internal/utils"
)

// Container is the archive layout
type Container int

const (
	ContainerTar Container = iota
	ContainerZip
)

// Format maps a file name suffix to a container and compressor
type Format struct {
	Suffix      string
	Container   Container
	Compression utils.Compression
}

// formats are matched exactly against the suffix left after <name>-<version>
var formats = []Format{
	{Suffix: ".tar.gz", Container: ContainerTar, Compression: utils.CompressGzip},
	{Suffix: ".tgz", Container: ContainerTar, Compression: utils.CompressGzip},
	{Suffix: ".tar.bz2", Container: ContainerTar, Compression: utils.CompressBzip2},
	{Suffix: ".tar.xz", Container: ContainerTar, Compression: utils.CompressXz},
	{Suffix: ".tar.zst", Container: ContainerTar, Compression: utils.CompressZstd},
	{Suffix: ".tar", Container: ContainerTar, Compression: utils.CompressNone},
	{Suffix: ".zip", Container: ContainerZip, Compression: utils.CompressNone},
}

// FormatForSuffix returns the format for a suffix such as ".tar.gz"
func FormatForSuffix(suffix string) (Format, bool) {
	suffix = strings.ToLower(suffix)
	for _, f := range formats {
		if f.Suffix == suffix {
			return f, true
		}
	}
	return Format{}, false
}

// Suffixes lists the recognised suffixes
func Suffixes() []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = f.Suffix
	}
	return out
}
