package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"rfi-go/internal/cargo"
	"rfi-go/internal/config"
	"rfi-go/internal/database"
	"rfi-go/internal/dircache"
	"rfi-go/internal/fs"
	"rfi-go/internal/rfi"
)

// ErrHistoryDisabled is returned by History when no history database is configured.
var ErrHistoryDisabled = errors.New("operation history is disabled (set [database] type to sqlite)")

// CommandRunner runs a build command in dir with the process's standard streams.
type CommandRunner func(ctx context.Context, dir string, argv []string) error

// RFIApp is the application layer between the CLI and the rfi core.
// It constructs all dependencies from config, exposes one method per command
// that accepts raw paths and flags, and records the command in the history
// database on Close.
type RFIApp struct {
	cfg       *config.Config
	fs        afero.Fs
	root      string
	logger    *slog.Logger
	clock     rfi.Clock
	service   *rfi.Service
	loader    *cargo.Loader
	cache     *dircache.DirCache
	gitLister rfi.FileLister
	run       CommandRunner
	db        *database.SQLiteDatabase // nil when history is disabled
	op        *Operation
	begun     bool
	logFile   *os.File
}

type appOptions struct {
	fs          afero.Fs
	clock       rfi.Clock
	ids         rfi.IDGenerator
	stderr      io.Writer
	cargoRunner cargo.Runner
	run         CommandRunner
	gitLister   rfi.FileLister
}

// Option configures NewRFIApp. The defaults use the real filesystem, clock
// and processes.
type Option func(*appOptions)

// WithFs sets the filesystem all operations act on.
func WithFs(fsys afero.Fs) Option {
	return func(o *appOptions) { o.fs = fsys }
}

// WithClock sets the clock used for staleness and history timestamps.
func WithClock(clock rfi.Clock) Option {
	return func(o *appOptions) { o.clock = clock }
}

// WithIDGenerator sets the run ID source.
func WithIDGenerator(ids rfi.IDGenerator) Option {
	return func(o *appOptions) { o.ids = ids }
}

// WithStderr sets where log lines go besides the log file.
func WithStderr(w io.Writer) Option {
	return func(o *appOptions) { o.stderr = w }
}

// WithCargoRunner replaces execution of cargo metadata.
func WithCargoRunner(run cargo.Runner) Option {
	return func(o *appOptions) { o.cargoRunner = run }
}

// WithCommandRunner replaces execution of the bracketed build command.
func WithCommandRunner(run CommandRunner) Option {
	return func(o *appOptions) { o.run = run }
}

// WithGitLister replaces the git index lister used with gitignore.
func WithGitLister(lister rfi.FileLister) Option {
	return func(o *appOptions) { o.gitLister = lister }
}

// NewRFIApp creates a fully wired RFIApp from the given config. root is the
// working root of dump and restore, usually the current directory. operation
// names the CLI command being run. The caller must call Close when done.
func NewRFIApp(cfg *config.Config, root, operation string, options ...Option) (*RFIApp, error) {
	o := &appOptions{
		fs:        fs.NewOSFs(),
		clock:     rfi.RealClock{},
		ids:       rfi.UUIDGenerator{},
		stderr:    os.Stderr,
		run:       execCommand,
		gitLister: fs.NewGitLister(),
	}
	for _, option := range options {
		option(o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := o.ids.New()
	logger, logFile, err := newLogger(o.stderr, cfg.LogDir, runID, parseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var db *database.SQLiteDatabase
	if cfg.Database.Type != "none" {
		db, err = database.NewDatabaseFromConfig(cfg.Database)
		if err != nil {
			closeFile(logFile)
			return nil, fmt.Errorf("creating database: %w", err)
		}
		if err := db.CheckMigrations(); err != nil {
			db.Close()
			closeFile(logFile)
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	adapter := &slogAdapter{l: logger}
	var loaderOpts []cargo.Option
	if o.cargoRunner != nil {
		loaderOpts = append(loaderOpts, cargo.WithRunner(o.cargoRunner))
	}

	a := &RFIApp{
		cfg:       cfg,
		fs:        o.fs,
		root:      root,
		logger:    logger,
		clock:     o.clock,
		loader:    cargo.NewLoader(o.fs, loaderOpts...),
		cache:     dircache.New(o.fs, cfg.Cache.Path, cfg.Cache.Dirs, dircache.WithLogger(adapter)),
		gitLister: o.gitLister,
		run:       o.run,
		db:        db,
		op:        NewOperation(runID, operation, ""),
		logFile:   logFile,
	}
	a.service = a.serviceAt(root)
	return a, nil
}

// Config returns the effective configuration.
func (a *RFIApp) Config() *config.Config {
	return a.cfg
}

// RunID returns the ID tagging this run's log lines and history record.
func (a *RFIApp) RunID() string {
	return a.op.RunID
}

// serviceAt builds a core service whose working root is dir.
func (a *RFIApp) serviceAt(dir string) *rfi.Service {
	return rfi.NewService(a.fs, dir,
		rfi.WithLogger(&slogAdapter{l: a.logger}),
		rfi.WithClock(a.clock),
		rfi.WithTableName(a.cfg.SnapshotFile),
	)
}

// begin records the start of a mutating operation when history is enabled.
func (a *RFIApp) begin(params map[string]any) error {
	a.begun = true
	a.op.Parameters = FormatParameters(params)
	a.logger.Info("operation started", "operation", a.op.Name, "parameters", a.op.Parameters)

	if a.db == nil || a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.RunID, a.op.Name, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

func (a *RFIApp) fail(err error) error {
	a.op.Fail(err)
	return err
}

func (a *RFIApp) succeed(format string, args ...any) {
	a.op.Succeed(fmt.Sprintf(format, args...))
}

// dumpOptions selects the lister and exclusions for a dump rooted at dir.
func (a *RFIApp) dumpOptions(dir string, gitignore bool) (rfi.DumpOptions, error) {
	patterns, err := fs.ParseIgnoreFile(a.fs, filepath.Join(dir, fs.IgnoreFileName))
	if err != nil {
		return rfi.DumpOptions{}, err
	}
	opts := rfi.DumpOptions{
		Exclude: fs.NewIgnoreMatcher(append(append([]string{}, a.cfg.Dump.Exclude...), patterns...)),
	}
	if gitignore {
		opts.Lister = a.gitLister
	}
	return opts, nil
}

// Dump snapshots the working root. With gitignore only files tracked by git
// are recorded. Returns the number of recorded files.
func (a *RFIApp) Dump(gitignore bool) (int, error) {
	if err := a.begin(map[string]any{"root": a.root, "gitignore": gitignore}); err != nil {
		return 0, err
	}

	n, err := a.dumpAt(a.service, a.root, gitignore)
	if err != nil {
		return 0, a.fail(err)
	}
	a.succeed("recorded %d files", n)
	return n, nil
}

func (a *RFIApp) dumpAt(svc *rfi.Service, dir string, gitignore bool) (int, error) {
	opts, err := a.dumpOptions(dir, gitignore)
	if err != nil {
		return 0, err
	}
	records, err := svc.Dump(opts)
	if err != nil {
		return 0, fmt.Errorf("dumping %s: %w", dir, err)
	}
	a.logger.Info("dump finished", "root", dir, "files", len(records), "table", svc.TablePath())
	return len(records), nil
}

// Restore reapplies the snapshot of the working root.
func (a *RFIApp) Restore(skipMissing bool) (*rfi.RestoreReport, error) {
	if err := a.begin(map[string]any{"root": a.root, "skip_missing": skipMissing}); err != nil {
		return nil, err
	}

	report, err := a.restoreAt(a.service, skipMissing)
	if err != nil {
		return nil, a.fail(err)
	}
	a.succeed("%s", restoreSummary(report))
	return report, nil
}

func (a *RFIApp) restoreAt(svc *rfi.Service, skipMissing bool) (*rfi.RestoreReport, error) {
	report, err := svc.Restore(rfi.RestoreOptions{SkipMissing: skipMissing})
	if err != nil {
		return nil, fmt.Errorf("restoring %s: %w", svc.Root(), err)
	}
	a.logger.Info("restore finished",
		"root", svc.Root(),
		"restored", report.Restored,
		"skipped", report.Skipped,
		"missing", report.Missing,
	)
	return report, nil
}

func restoreSummary(r *rfi.RestoreReport) string {
	if r.TableMissing {
		return "no attribute table"
	}
	return fmt.Sprintf("restored %d, changed %d, missing %d", r.Restored, r.Skipped, r.Missing)
}

// CleanTargetDir prunes the build-output tree. An empty dir means the
// configured target dir, or "target" under the working root. metadataFile,
// when set, replaces running cargo metadata.
func (a *RFIApp) CleanTargetDir(ctx context.Context, dir, metadataFile string, stale bool) (*rfi.PruneReport, error) {
	dir = firstNonEmpty(dir, a.cfg.Target.Dir, filepath.Join(a.root, "target"))
	if err := a.begin(map[string]any{"dir": dir, "stale": stale, "metadata": metadataFile}); err != nil {
		return nil, err
	}

	report, err := a.cleanTargetDir(ctx, dir, metadataFile, stale)
	if err != nil {
		return nil, a.fail(err)
	}
	a.succeed("removed %d files, %d directories", report.RemovedFiles, report.RemovedDirs)
	return report, nil
}

func (a *RFIApp) cleanTargetDir(ctx context.Context, dir, metadataFile string, stale bool) (*rfi.PruneReport, error) {
	absDir, err := fs.Resolve(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving target dir: %w", err)
	}
	pkgs, err := a.packages(ctx, metadataFile)
	if err != nil {
		return nil, err
	}
	report, err := a.service.PruneTargetDir(absDir, pkgs, stale)
	if err != nil {
		return nil, fmt.Errorf("cleaning target dir: %w", err)
	}
	return report, nil
}

// CleanRegistry prunes the package registry. An empty dir means the
// configured registry dir. With crates unreferenced archives are deleted too.
func (a *RFIApp) CleanRegistry(ctx context.Context, dir, metadataFile string, crates bool) (*rfi.PruneReport, error) {
	dir = firstNonEmpty(dir, a.cfg.Registry.Dir)
	if err := a.begin(map[string]any{"dir": dir, "crates": crates, "metadata": metadataFile}); err != nil {
		return nil, err
	}

	report, err := a.cleanRegistry(ctx, dir, metadataFile, crates)
	if err != nil {
		return nil, a.fail(err)
	}
	a.succeed("removed %d files, %d directories", report.RemovedFiles, report.RemovedDirs)
	return report, nil
}

func (a *RFIApp) cleanRegistry(ctx context.Context, dir, metadataFile string, crates bool) (*rfi.PruneReport, error) {
	if dir == "" {
		return nil, fmt.Errorf("no registry dir configured")
	}
	absDir, err := fs.Resolve(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving registry dir: %w", err)
	}
	pkgs, err := a.packages(ctx, metadataFile)
	if err != nil {
		return nil, err
	}
	report, err := a.service.PruneRegistry(absDir, pkgs, crates)
	if err != nil {
		return nil, fmt.Errorf("cleaning registry: %w", err)
	}
	return report, nil
}

func (a *RFIApp) packages(ctx context.Context, metadataFile string) (rfi.Packages, error) {
	if metadataFile != "" {
		abs, err := fs.Resolve(metadataFile)
		if err != nil {
			return nil, fmt.Errorf("resolving metadata file: %w", err)
		}
		metadataFile = abs
	}
	pkgs, err := a.loader.Packages(ctx, a.root, metadataFile)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	a.logger.Debug("packages resolved", "count", len(pkgs))
	return pkgs, nil
}

// CacheInit creates the cache-side directory of every configured alias.
func (a *RFIApp) CacheInit() error {
	if err := a.begin(map[string]any{"path": a.cfg.Cache.Path}); err != nil {
		return err
	}
	if err := a.cacheInit(); err != nil {
		return a.fail(err)
	}
	a.succeed("%d cached directories", len(a.cache.Aliases()))
	return nil
}

func (a *RFIApp) cacheInit() error {
	if len(a.cache.Aliases()) == 0 {
		return fmt.Errorf("no cached directories configured ([cache.dirs])")
	}
	if err := a.cache.Init(); err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	return nil
}

// CacheRestore copies every cached directory onto its mountpoint and restores
// file metadata there.
func (a *RFIApp) CacheRestore(skipMissing bool) error {
	if err := a.begin(map[string]any{"path": a.cfg.Cache.Path, "skip_missing": skipMissing}); err != nil {
		return err
	}
	if err := a.cacheRestore(skipMissing); err != nil {
		return a.fail(err)
	}
	a.succeed("restored %d cached directories", len(a.cache.Aliases()))
	return nil
}

func (a *RFIApp) cacheRestore(skipMissing bool) error {
	return a.cache.Restore(func(dir string) error {
		_, err := a.restoreAt(a.serviceAt(dir), skipMissing)
		return err
	})
}

// CacheDump snapshots file metadata in every mountpoint and copies the
// mountpoints back into the cache.
func (a *RFIApp) CacheDump(gitignore bool) error {
	if err := a.begin(map[string]any{"path": a.cfg.Cache.Path, "gitignore": gitignore}); err != nil {
		return err
	}
	if err := a.cacheDump(gitignore); err != nil {
		return a.fail(err)
	}
	a.succeed("dumped %d cached directories", len(a.cache.Aliases()))
	return nil
}

func (a *RFIApp) cacheDump(gitignore bool) error {
	return a.cache.Dump(func(dir string) error {
		_, err := a.dumpAt(a.serviceAt(dir), dir, gitignore)
		return err
	})
}

// CacheRun brackets a build command: the cache is initialized and restored,
// argv runs in the working root, and on success the cache is dumped. A failed
// command leaves the cache untouched.
func (a *RFIApp) CacheRun(ctx context.Context, argv []string, skipMissing, gitignore bool) error {
	if err := a.begin(map[string]any{"path": a.cfg.Cache.Path, "command": argv}); err != nil {
		return err
	}
	if len(argv) == 0 {
		return a.fail(fmt.Errorf("no command given"))
	}

	if err := a.cacheInit(); err != nil {
		return a.fail(err)
	}
	if err := a.cacheRestore(skipMissing); err != nil {
		return a.fail(err)
	}

	a.logger.Info("running build command", "command", argv, "dir", a.root)
	if err := a.run(ctx, a.root, argv); err != nil {
		return a.fail(fmt.Errorf("running %s: %w", argv[0], err))
	}

	if err := a.cacheDump(gitignore); err != nil {
		return a.fail(err)
	}
	a.succeed("built and cached %d directories", len(a.cache.Aliases()))
	return nil
}

// History returns the most recent recorded operations, newest first.
func (a *RFIApp) History(limit int) ([]*database.Operation, error) {
	if a.db == nil {
		return nil, ErrHistoryDisabled
	}
	return a.db.ListOperations(limit)
}

// Close finalizes the operation record and closes all resources.
func (a *RFIApp) Close() error {
	var firstErr error

	if a.db != nil {
		if a.op.Persisted() {
			if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.op.Summary, a.clock.Now()); err != nil {
				firstErr = fmt.Errorf("finishing operation: %w", err)
			}
		}
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.begun {
		a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "summary", a.op.Summary)
	}
	closeFile(a.logFile)

	return firstErr
}

func execCommand(ctx context.Context, dir string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
