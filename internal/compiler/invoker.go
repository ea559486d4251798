// Package compiler invokes the external schema compiler. The process is an
// opaque collaborator: it gets a file list and flags, and reports an exit
// status.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"protogen/internal/runner"
)

const schemaExt = ".proto"

var (
	// ErrPathMismatch means the configured source and output directory
	// lists have different lengths. Checked before any filesystem or
	// process work.
	ErrPathMismatch = errors.New("source and output directory counts differ")

	ErrCompilerFailed = errors.New("compiler invocation failed")
)

// InvocationError reports a nonzero compiler exit, carrying the attempted
// command line for debuggability.
type InvocationError struct {
	Command  string
	Args     []string
	ExitCode int
	Output   []byte
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s %s: exit code %d", e.Command, strings.Join(e.Args, " "), e.ExitCode)
}

func (e *InvocationError) Unwrap() error {
	return ErrCompilerFailed
}

// Pair is one source directory matched with its output directory.
type Pair struct {
	SourceDir string
	OutputDir string
}

// Pairs zips parallel source and output directory lists, rejecting unequal
// lengths with ErrPathMismatch before any work starts.
func Pairs(sourceDirs, outputDirs []string) ([]Pair, error) {
	if len(sourceDirs) != len(outputDirs) {
		return nil, fmt.Errorf("%w: %d sources, %d outputs", ErrPathMismatch, len(sourceDirs), len(outputDirs))
	}

	pairs := make([]Pair, 0, len(sourceDirs))
	for i := range sourceDirs {
		pairs = append(pairs, Pair{SourceDir: sourceDirs[i], OutputDir: outputDirs[i]})
	}
	return pairs, nil
}

// Invoker runs the compiler once per source directory.
type Invoker struct {
	runner   runner.Runner
	path     string
	includes []string
	logger   *zap.Logger
}

func NewInvoker(r runner.Runner, compilerPath string, includes []string, logger *zap.Logger) *Invoker {
	return &Invoker{
		runner:   r,
		path:     compilerPath,
		includes: includes,
		logger:   logger,
	}
}

// Invoke compiles every schema file under sourceDir into targetDir. A
// missing source directory, or one containing no schema files, is a
// deliberate no-op.
func (inv *Invoker) Invoke(ctx context.Context, sourceDir, targetDir string) error {
	files, err := listSchemas(sourceDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		inv.logger.Info("no schema files, skipping compiler",
			zap.String("source", sourceDir))
		return nil
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", targetDir, err)
	}

	args := []string{"-I" + sourceDir, "--output=" + targetDir}
	for _, include := range inv.includes {
		args = append(args, "-I"+include)
	}
	args = append(args, files...)

	code, output, err := inv.runner.Run(ctx, inv.path, args...)
	if err != nil {
		return fmt.Errorf("launching %s %s: %w", inv.path, strings.Join(args, " "), err)
	}
	if code != 0 {
		return &InvocationError{
			Command:  inv.path,
			Args:     args,
			ExitCode: code,
			Output:   output,
		}
	}

	inv.logger.Info("compiled schema files",
		zap.String("source", sourceDir),
		zap.String("target", targetDir),
		zap.Int("count", len(files)))
	return nil
}

func listSchemas(sourceDir string) ([]string, error) {
	if _, err := os.Stat(sourceDir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == schemaExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing schema files under %s: %w", sourceDir, err)
	}
	return files, nil
}
