package specfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ralt/rpmci/internal/execx"
	"github.com/sirupsen/logrus"
)

// Querier answers questions about a spec file with macros expanded
type Querier interface {
	// Query returns the expanded value of a header tag (name, version, release...)
	Query(ctx context.Context, s *Spec, tag string) (string, error)

	// Source returns the expanded primary source URL
	Source(ctx context.Context, s *Spec) (string, error)
}

// NewQuerier returns an rpmspec-backed querier when rpmspec is installed and
// the built-in parser otherwise
func NewQuerier(runner execx.Runner, defines map[string]string) Querier {
	if execx.LookPath(RPMSpecTool) {
		return NewRPMSpecQuerier(runner, defines)
	}
	logrus.Warnf("%s not found in PATH, using built-in spec parser", RPMSpecTool)
	return NewNativeQuerier(defines)
}

// RPMSpecTool is the external query tool
const RPMSpecTool = "rpmspec"

// RPMSpecQuerier queries through rpmspec. The in-memory content is written to
// a temporary file next to the spec so relative %include paths keep working.
type RPMSpecQuerier struct {
	runner  execx.Runner
	defines map[string]string
}

// NewRPMSpecQuerier creates a querier running rpmspec through runner
func NewRPMSpecQuerier(runner execx.Runner, defines map[string]string) *RPMSpecQuerier {
	return &RPMSpecQuerier{runner: runner, defines: defines}
}

// Query implements Querier
func (q *RPMSpecQuerier) Query(ctx context.Context, s *Spec, tag string) (string, error) {
	var value string
	err := q.withTempSpec(s, func(tmp string) error {
		args := append(q.defineArgs(), "-q", "--srpm", "--qf", fmt.Sprintf("%%{%s}\\n", tag), tmp)
		res, err := q.runner.Run(ctx, execx.Command{Name: RPMSpecTool, Args: args, Dir: s.Dir()})
		if err != nil {
			return err
		}
		value = res.FirstLine()
		if value == "(none)" {
			value = ""
		}
		return nil
	})
	return value, err
}

// Source implements Querier
func (q *RPMSpecQuerier) Source(ctx context.Context, s *Spec) (string, error) {
	var source string
	err := q.withTempSpec(s, func(tmp string) error {
		args := append(q.defineArgs(), "-P", tmp)
		res, err := q.runner.Run(ctx, execx.Command{Name: RPMSpecTool, Args: args, Dir: s.Dir()})
		if err != nil {
			return err
		}
		source = primarySource(Parse(tmp, []byte(res.Stdout)))
		return nil
	})
	return source, err
}

func (q *RPMSpecQuerier) defineArgs() []string {
	var args []string
	for _, k := range sortedKeys(q.defines) {
		args = append(args, "--define", k+" "+q.defines[k])
	}
	return args
}

func (q *RPMSpecQuerier) withTempSpec(s *Spec, fn func(string) error) error {
	f, err := os.CreateTemp(s.Dir(), ".rpmci-*.spec")
	if err != nil {
		return fmt.Errorf("failed to create temporary spec: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(s.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temporary spec: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fn(f.Name())
}

// primarySource returns Source0, or Source when Source0 is absent
func primarySource(s *Spec) string {
	if v, ok := s.Directive("Source0"); ok {
		return v
	}
	v, _ := s.Directive("Source")
	return v
}

// SourceFilename returns what follows the last slash of a source URL, the
// name rpmbuild looks for in %_sourcedir. A "#/name" fragment therefore
// renames the download.
func SourceFilename(source string) string {
	source = strings.TrimSpace(source)
	return source[strings.LastIndex(source, "/")+1:]
}
