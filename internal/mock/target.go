package mock

import "github.com/ralt/rpmci/internal/utils"

// Target is a known mock build environment. Environments that need no
// compatibility overrides map to TargetDefault.
type Target int

const (
	TargetDefault Target = iota
	TargetEPEL5i386
	TargetEPEL5x86_64
)

// Define is one rpm macro passed with --define
type Define struct {
	Name  string
	Value string
}

// Arg renders the define as a single --define argument value
func (d Define) Arg() string {
	return d.Name + " " + d.Value
}

type targetInfo struct {
	config   string
	defines  []Define
	dist     string
	checksum string
}

// el5 rpm only reads md5 file digests (algorithm 1) and gzip payloads
var el5Defines = []Define{
	{Name: "_source_filedigest_algorithm", Value: "1"},
	{Name: "_binary_filedigest_algorithm", Value: "1"},
	{Name: "_source_payload", Value: "w9.gzdio"},
	{Name: "_binary_payload", Value: "w9.gzdio"},
}

var targets = map[Target]targetInfo{
	TargetDefault: {
		checksum: utils.ChecksumSHA256,
	},
	TargetEPEL5i386: {
		config:   "epel-5-i386",
		defines:  el5Defines,
		dist:     ".el5",
		checksum: utils.ChecksumSHA,
	},
	TargetEPEL5x86_64: {
		config:   "epel-5-x86_64",
		defines:  el5Defines,
		dist:     ".el5",
		checksum: utils.ChecksumSHA,
	},
}

// TargetFor maps a mock configuration name to its Target
func TargetFor(config string) Target {
	for t, info := range targets {
		if info.config != "" && info.config == config {
			return t
		}
	}
	return TargetDefault
}

// String returns the mock configuration name, or "default"
func (t Target) String() string {
	if info := targets[t]; info.config != "" {
		return info.config
	}
	return "default"
}

// Defines returns the compatibility macros for the target
func (t Target) Defines() []Define {
	return append([]Define(nil), targets[t].defines...)
}

// Dist returns the %{dist} value, empty when the target sets none
func (t Target) Dist() string {
	return targets[t].dist
}

// Checksum returns the checksum algorithm for repository metadata
func (t Target) Checksum() string {
	return targets[t].checksum
}

// BuildDefines returns dist followed by the compatibility macros
func (t Target) BuildDefines() []Define {
	dist := t.Dist()
	if dist == "" {
		dist = "%{nil}"
	}
	return append([]Define{{Name: "dist", Value: dist}}, t.Defines()...)
}
