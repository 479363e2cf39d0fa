package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Checksum algorithms as named in repomd.xml. "sha" is the legacy yum name
// for sha1.
const (
	ChecksumMD5    = "md5"
	ChecksumSHA    = "sha"
	ChecksumSHA1   = "sha1"
	ChecksumSHA256 = "sha256"
	ChecksumSHA512 = "sha512"
)

// NewHash returns a hash for a checksum algorithm name
func NewHash(algo string) (hash.Hash, error) {
	switch algo {
	case ChecksumMD5:
		return md5.New(), nil
	case ChecksumSHA, ChecksumSHA1:
		return sha1.New(), nil
	case ChecksumSHA256, "":
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
	}
}

// CalculateFileChecksum streams a file through the given algorithm and
// returns the hex digest and the file size
func CalculateFileChecksum(path, algo string) (string, int64, error) {
	h, err := NewHash(algo)
	if err != nil {
		return "", 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// CalculateChecksum calculates a specific checksum for data
func CalculateChecksum(data []byte, algo string) (string, error) {
	h, err := NewHash(algo)
	if err != nil {
		return "", err
	}

	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
