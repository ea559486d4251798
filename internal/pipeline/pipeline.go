// Package pipeline wires the generation steps together: gate on the
// compiler version once, then for each configured pair compile into a
// staging directory and sync the staging tree into the real output.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"protogen/internal/compiler"
	"protogen/internal/config"
	"protogen/internal/fingerprint"
	"protogen/internal/manifest"
	"protogen/internal/runner"
	"protogen/internal/transform"
	"protogen/internal/version"
)

const hasherCacheSize = 4096

type Pipeline struct {
	cfg     *config.Config
	runner  runner.Runner
	invoker *compiler.Invoker
	syncer  *transform.Syncer
	store   *manifest.Store
	logger  *zap.Logger
}

func New(cfg *config.Config, r runner.Runner, db *badger.DB, logger *zap.Logger) (*Pipeline, error) {
	hasher, err := fingerprint.NewHasher(hasherCacheSize)
	if err != nil {
		return nil, err
	}
	store, err := manifest.NewStore(db, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:     cfg,
		runner:  r,
		invoker: compiler.NewInvoker(r, cfg.CompilerPath, cfg.IncludeDirs, logger),
		syncer:  transform.NewSyncer(hasher, store, logger),
		store:   store,
		logger:  logger,
	}, nil
}

// Run executes one full generation pass. A failing pair aborts the run;
// pairs already completed are not rolled back.
func (p *Pipeline) Run(ctx context.Context) (transform.Result, error) {
	var total transform.Result

	log := p.logger.With(zap.String("run_id", uuid.NewString()))

	// Configuration invariants come first: a path-count mismatch must
	// abort before any filesystem or process work, the version probe
	// included.
	pairs, err := compiler.Pairs(p.cfg.SourceDirs, p.cfg.OutputDirs)
	if err != nil {
		return total, err
	}

	if err := version.Check(ctx, p.runner, p.cfg.CompilerPath, p.cfg.RequiredVersion); err != nil {
		return total, err
	}

	for _, pair := range pairs {
		staging := p.stagingDir(pair)

		// The compiler regenerates every file for schemas that still
		// exist, so anything surviving from the previous run belongs to
		// a deleted schema and must not reach the sync pass. Repeat
		// builds stay cheap: identical regenerated bytes hash equal and
		// the sync short-circuits.
		if err := os.RemoveAll(staging); err != nil {
			return total, fmt.Errorf("clearing staging directory %s: %w", staging, err)
		}

		if err := p.invoker.Invoke(ctx, pair.SourceDir, staging); err != nil {
			return total, err
		}

		result, err := p.syncer.Sync(staging, pair.OutputDir, p.isTransformable, p.transformFile)
		if err != nil {
			return total, fmt.Errorf("syncing %s: %w", pair.OutputDir, err)
		}
		total.Add(result)

		log.Info("pair processed",
			zap.String("source", pair.SourceDir),
			zap.String("output", pair.OutputDir),
			zap.Int("written", result.Written),
			zap.Int("deleted", result.Deleted),
			zap.Int("unchanged", result.Unchanged))
	}

	return total, nil
}

// ForgetAll drops the manifests of every configured pair, forcing the next
// run to reprocess everything.
func (p *Pipeline) ForgetAll() error {
	pairs, err := compiler.Pairs(p.cfg.SourceDirs, p.cfg.OutputDirs)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		scope := manifest.Scope(p.stagingDir(pair), pair.OutputDir)
		if err := p.store.Forget(scope); err != nil {
			return err
		}
	}
	return nil
}

// stagingDir derives the intermediate directory the compiler writes into
// for a pair. Keyed by the pair's manifest scope so distinct pairs never
// collide.
func (p *Pipeline) stagingDir(pair compiler.Pair) string {
	key := fingerprint.String(manifest.Scope(pair.SourceDir, pair.OutputDir))
	return filepath.Join(p.cfg.CacheDir, "gen", key)
}

func (p *Pipeline) isTransformable(rel string) bool {
	for _, suffix := range p.cfg.CopySuffixes {
		if strings.HasSuffix(rel, suffix) {
			return false
		}
	}
	return true
}

func (p *Pipeline) transformFile(sourcePath, targetPath string) error {
	return transform.Rewrite(sourcePath, targetPath, transform.ReplaceAll(p.cfg.ReplaceFrom, p.cfg.ReplaceTo))
}
