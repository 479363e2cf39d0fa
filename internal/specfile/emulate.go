package specfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ralt/rpmci/internal/execx"
)

// EmulateRPMSpec answers an rpmspec command line with the built-in parser,
// for tests that register it on an execx.FakeRunner. Like rpm it refuses '@'
// in Version and Release and macros defined with an empty body.
func EmulateRPMSpec(c execx.Command) (*execx.Result, error) {
	if len(c.Args) == 0 {
		return execx.Fail(c, 1, "error: no spec file given")
	}

	defines := make(map[string]string)
	var qf string
	preprocess := false
	for i := 0; i < len(c.Args)-1; i++ {
		switch c.Args[i] {
		case "--define":
			i++
			name, value, _ := strings.Cut(c.Args[i], " ")
			if strings.TrimSpace(value) == "" {
				return execx.Fail(c, 1, fmt.Sprintf("error: Macro %%%s has empty body", name))
			}
			defines[name] = value
		case "--qf":
			i++
			qf = c.Args[i]
		case "-P":
			preprocess = true
		}
	}

	path := c.Args[len(c.Args)-1]
	data, err := os.ReadFile(path)
	if err != nil {
		return execx.Fail(c, 1, "error: "+err.Error())
	}
	s := Parse(path, data)

	for _, tag := range []string{"Version", "Release"} {
		if v, ok := s.Directive(tag); ok && strings.Contains(v, "@") {
			return execx.Fail(c, 1, fmt.Sprintf("error: Illegal char '@' (0x40) in: %s: %s", tag, v))
		}
	}

	q := NewNativeQuerier(defines)
	ctx := context.Background()

	if preprocess {
		source, _ := q.Source(ctx, s)
		return &execx.Result{Command: c, Stdout: "Source0: " + source + "\n"}, nil
	}

	tag := strings.TrimSuffix(strings.TrimPrefix(qf, "%{"), "}\\n")
	value, _ := q.Query(ctx, s, tag)
	if value == "" {
		value = "(none)"
	}
	return &execx.Result{Command: c, Stdout: value + "\n"}, nil
}
