// Package version gates generation on the installed compiler matching the
// configured major.minor. Patch and pre-release suffixes are tolerated.
package version

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"protogen/internal/runner"
)

var (
	ErrMismatch    = errors.New("compiler version mismatch")
	ErrUnparseable = errors.New("unparseable compiler version")
)

// Check queries the compiler with --version and compares the reported
// version against required on major.minor.
func Check(ctx context.Context, r runner.Runner, compilerPath, required string) error {
	code, output, err := r.Run(ctx, compilerPath, "--version")
	if err != nil {
		return fmt.Errorf("querying compiler version: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("%s --version exited with code %d", compilerPath, code)
	}

	// The version is the last whitespace-delimited token of the output,
	// e.g. "libprotoc 3.9.1".
	fields := strings.Fields(string(output))
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty output from %s --version", ErrUnparseable, compilerPath)
	}
	return Compare(fields[len(fields)-1], required)
}

// Compare matches two dotted version strings on major.minor only.
func Compare(installed, required string) error {
	iMajor, iMinor, ok := parseMajorMinor(installed)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnparseable, installed)
	}
	rMajor, rMinor, ok := parseMajorMinor(required)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnparseable, required)
	}

	if iMajor != rMajor || iMinor != rMinor {
		return fmt.Errorf("%w: installed %s, required %s", ErrMismatch, installed, required)
	}
	return nil
}

// parseMajorMinor extracts the leading major.minor pair. The minor token
// may carry a suffix ("9-rc1"); its leading digits are used.
func parseMajorMinor(s string) (int, int, bool) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}

	minorDigits := leadingDigits(parts[1])
	if minorDigits == "" {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(minorDigits)
	if err != nil {
		return 0, 0, false
	}

	return major, minor, true
}

func leadingDigits(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s[:i]
		}
	}
	return s
}
