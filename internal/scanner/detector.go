package scanner

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"
)

// RPM lead: 4 magic bytes, major, minor, then a big-endian int16 type
// (0 binary, 1 source)
var rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

const rpmLeadTypeOffset = 6

// DetectPackageType determines the package type from the RPM lead, falling
// back to the file extension for truncated files
func DetectPackageType(path string) (PackageType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 {
		if err == io.EOF {
			return TypeUnknown, nil
		}
		return TypeUnknown, err
	}
	header = header[:n]

	if n >= rpmLeadTypeOffset+2 && bytes.HasPrefix(header, rpmMagic) {
		if binary.BigEndian.Uint16(header[rpmLeadTypeOffset:]) == 1 {
			return TypeSrpm, nil
		}
		return TypeRpm, nil
	}

	switch {
	case strings.HasSuffix(path, ".src.rpm"):
		return TypeSrpm, nil
	case strings.HasSuffix(path, ".rpm"):
		return TypeRpm, nil
	}

	return TypeUnknown, nil
}
