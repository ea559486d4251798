package transform

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Generated code can carry very long lines.
const maxLineSize = 4 * 1024 * 1024

// Rewrite re-encodes the file at sourcePath into targetPath, applying
// lineFn to every line and terminating each with '\n'. Any I/O failure
// aborts the whole operation; the target is left indeterminate, so callers
// wanting atomicity write to a temporary path and rename (the Syncer does).
func Rewrite(sourcePath, targetPath string, lineFn func(string) string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", sourcePath, err)
	}
	defer in.Close()

	out, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", targetPath, err)
	}

	writer := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if _, err := writer.WriteString(lineFn(scanner.Text())); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", targetPath, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", targetPath, err)
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return fmt.Errorf("reading %s: %w", sourcePath, err)
	}

	if err := writer.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flushing %s: %w", targetPath, err)
	}
	return out.Close()
}

// ReplaceAll returns a line transform substituting every occurrence of
// from with to. The one concrete use here is renaming the generated
// package/namespace literal.
func ReplaceAll(from, to string) func(string) string {
	if from == "" {
		return func(line string) string { return line }
	}
	return func(line string) string {
		return strings.ReplaceAll(line, from, to)
	}
}
