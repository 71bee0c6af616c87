// Package doctor provides environment preflight checks for voiceclone.
package doctor

import (
	"fmt"
	"io"
	"os"
)

// PassMark, WarnMark and FailMark are the prefix symbols printed for each
// check result.
const (
	PassMark = "✓"
	WarnMark = "!"
	FailMark = "✗"
)

// ProbeFunc returns a short description or an error if the component is
// unusable.
type ProbeFunc func() (string, error)

// Check is one named probe. Optional checks only warn on failure.
type Check struct {
	Name     string
	Probe    ProbeFunc
	Optional bool
	// Skip, when non-empty, is printed instead of running Probe.
	Skip string
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	Checks []Check
	// ReferenceFiles are audio clips or exported embeddings to verify.
	ReferenceFiles []string
	// ReadReference validates one reference file. Defaults to a stat.
	ReadReference func(path string) error
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
	warnings []string
}

// Failed returns true if any required check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// Warnings returns the messages of failed optional checks.
func (r *Result) Warnings() []string { return append([]string(nil), r.warnings...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark, WarnMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	for _, c := range cfg.Checks {
		if c.Skip != "" {
			fmt.Fprintf(w, "%s %s: skipped (%s)\n", PassMark, c.Name, c.Skip)
			continue
		}

		desc, err := c.Probe()
		switch {
		case err == nil:
			fmt.Fprintf(w, "%s %s: %s\n", PassMark, c.Name, desc)
		case c.Optional:
			res.warnings = append(res.warnings, fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: %v\n", WarnMark, c.Name, err)
		default:
			res.failures = append(res.failures, fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, c.Name, err)
		}
	}

	read := cfg.ReadReference
	if read == nil {
		read = func(path string) error {
			_, err := os.Stat(path)
			return err
		}
	}

	for _, path := range cfg.ReferenceFiles {
		if err := read(path); err != nil {
			res.failures = append(res.failures, fmt.Sprintf("reference %q: %v", path, err))
			fmt.Fprintf(w, "%s reference %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s reference: %s\n", PassMark, path)
		}
	}

	return res
}
