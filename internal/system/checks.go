// Package system verifies that the external tools a run depends on are available.
package system

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
)

// ErrMissingDependency indicates that a required binary could not be found.
var ErrMissingDependency = errors.New("missing dependency")

// RequiredBinaries lists the executables a sync run shells out to.
var RequiredBinaries = []string{"git"}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// CheckBinary ensures the given command is available on PATH.
func CheckBinary(name string) error {
	if _, err := lookPath(name); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingDependency, name)
	}
	return nil
}

// CheckDependencies checks every binary in names and reports all that are missing.
func CheckDependencies(names ...string) error {
	var errs []error
	for _, name := range names {
		if err := CheckBinary(name); err != nil {
			errs = append(errs, err)
		}
	}
	return apperr.New(apperr.KindDependency, "check dependencies", errors.Join(errs...))
}
