// cmd/protogen/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"protogen/internal/config"
	"protogen/internal/logging"
	"protogen/internal/pipeline"
	"protogen/internal/runner"
	"protogen/internal/version"
	"protogen/internal/watch"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "protogen",
	Short: "Protogen generates code from protobuf schemas incrementally",
	Long: `Protogen invokes an external protobuf compiler, rewrites package
literals in the generated output, and caches file fingerprints so repeated
builds skip everything that did not change.`,
}

type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *badger.DB
}

func (e *env) close() {
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Error("closing manifest database", zap.Error(err))
		}
	}
	e.logger.Sync()
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.CacheDir, "manifests"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening manifest database: %w", err)
	}

	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "protogen.json", "path to config file")

	var rebuild bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation pass",
		Long:  `Compiles every configured schema directory and syncs the transformed output, skipping files whose content is unchanged since the last run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			p, err := pipeline.New(e.cfg, runner.ExecRunner{}, e.db, e.logger)
			if err != nil {
				return err
			}
			if rebuild {
				if err := p.ForgetAll(); err != nil {
					return fmt.Errorf("clearing manifests: %w", err)
				}
			}

			result, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(result.Written, result.Deleted, result.Unchanged)
			return nil
		},
	}
	generateCmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard manifests and reprocess everything")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate whenever schema sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			p, err := pipeline.New(e.cfg, runner.ExecRunner{}, e.db, e.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			result, err := p.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(result.Written, result.Deleted, result.Unchanged)

			w, err := watch.New(e.cfg.SourceDirs, e.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Println("Watching for changes, Ctrl-C to stop")
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-w.Triggers():
					result, err := p.Run(ctx)
					if err != nil {
						// Keep watching: a broken schema edit should not
						// end the session.
						e.logger.Error("generation failed", zap.Error(err))
						color.New(color.FgRed).Printf("generation failed: %v\n", err)
						continue
					}
					printSummary(result.Written, result.Deleted, result.Unchanged)
				}
			}
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the installed compiler version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config %s: %w", configPath, err)
			}

			if err := version.Check(cmd.Context(), runner.ExecRunner{}, cfg.CompilerPath, cfg.RequiredVersion); err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s compiler at %s matches required version %s\n",
				green("ok:"), cfg.CompilerPath, cfg.RequiredVersion)
			return nil
		},
	}

	rootCmd.AddCommand(generateCmd, watchCmd, checkCmd)
}

func printSummary(written, deleted, unchanged int) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("%s written, %s deleted, %d unchanged\n",
		green(written), red(deleted), unchanged)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
