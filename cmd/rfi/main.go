package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rfi-go/internal/app"
	"rfi-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file over the defaults. A missing file yields
// the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	configPath := defaults["config_path"]
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		configPath = path
	}

	cfg, err := config.LoadOrDefault(configPath, config.NewConfig(defaults["base_dir"], defaults["registry_dir"]))
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, configPath, nil
}

// newApp reads the config and creates an RFIApp rooted at the current
// directory. The caller must defer app.Close().
func newApp(cmd *cobra.Command, operation string) (*app.RFIApp, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	a, err := app.NewRFIApp(cfg, cwd, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// boolFlag returns the flag value when it was given, otherwise the config value.
func boolFlag(cmd *cobra.Command, name string, configured bool) bool {
	if !cmd.Flags().Changed(name) {
		return configured
	}
	v, _ := cmd.Flags().GetBool(name)
	return v
}

var rootCmd = &cobra.Command{
	Use:   "rfi",
	Short: "Restore file metadata and prune build caches in CI",
	Long: `rfi keeps a persisted build cache usable across CI runs.

Without a subcommand it restores the mtime and mode of every file recorded
by a previous "rfi dump" whose content is unchanged.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runRestore,
}

// dump command
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Record mtime, mode and content hash of every file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "dump")
		if err != nil {
			return err
		}
		defer a.Close()

		gitignore := boolFlag(cmd, "gitignore", a.Config().Dump.Gitignore)
		n, err := a.Dump(gitignore)
		if err != nil {
			return err
		}

		fmt.Printf("Recorded %d file(s)\n", n)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Reapply recorded mtime and mode to unchanged files",
	Args:  cobra.NoArgs,
	RunE:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "restore")
	if err != nil {
		return err
	}
	defer a.Close()

	skipMissing := boolFlag(cmd, "skip-missing", a.Config().Restore.SkipMissing)
	report, err := a.Restore(skipMissing)
	if err != nil {
		return err
	}

	if report.TableMissing {
		fmt.Println("No attribute table found, nothing to restore.")
		return nil
	}
	fmt.Printf("Restored %d file(s), %d changed, %d missing\n", report.Restored, report.Skipped, report.Missing)
	return nil
}

// clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune build caches",
}

var cleanTargetDirCmd = &cobra.Command{
	Use:   "target_dir",
	Short: "Remove build artifacts of packages no longer required",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("target-dir")
		metadata, _ := cmd.Flags().GetString("metadata")

		a, err := newApp(cmd, "clean target_dir")
		if err != nil {
			return err
		}
		defer a.Close()

		stale := boolFlag(cmd, "stale", a.Config().Target.CheckStaleness)
		report, err := a.CleanTargetDir(cmd.Context(), dir, metadata, stale)
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d file(s), %d directorie(s)\n", report.RemovedFiles, report.RemovedDirs)
		return nil
	},
}

var cleanRegistryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Remove extracted sources and unused archives from the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("registry-dir")
		metadata, _ := cmd.Flags().GetString("metadata")

		a, err := newApp(cmd, "clean registry")
		if err != nil {
			return err
		}
		defer a.Close()

		crates := boolFlag(cmd, "crates", a.Config().Registry.PruneCrates)
		report, err := a.CleanRegistry(cmd.Context(), dir, metadata, crates)
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d file(s), %d directorie(s)\n", report.RemovedFiles, report.RemovedDirs)
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Persist build directories between runs",
}

var cacheInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the cache directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "cache init")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CacheInit(); err != nil {
			return err
		}
		fmt.Printf("Cache initialized at %s\n", a.Config().Cache.Path)
		return nil
	},
}

var cacheRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Copy cached directories into place and restore their metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "cache restore")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.CacheRestore(boolFlag(cmd, "skip-missing", a.Config().Restore.SkipMissing))
	},
}

var cacheDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Record metadata in cached directories and copy them into the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "cache dump")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.CacheDump(boolFlag(cmd, "gitignore", a.Config().Dump.Gitignore))
	},
}

var cacheRunCmd = &cobra.Command{
	Use:   "run -- COMMAND [ARGS...]",
	Short: "Restore the cache, run a build command and dump the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "cache run")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config()
		return a.CacheRun(cmd.Context(), args,
			boolFlag(cmd, "skip-missing", cfg.Restore.SkipMissing),
			boolFlag(cmd, "gitignore", cfg.Dump.Gitignore),
		)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				duration = op.Duration().Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Summary,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		configPath := defaults["config_path"]
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			configPath = path
		}

		cfg := config.NewConfig(defaults["base_dir"], defaults["registry_dir"])
		if err := config.Init(configPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", configPath)
		fmt.Printf("Registry Dir: %s\n", cfg.Registry.Dir)
		fmt.Printf("Cache Path:   %s\n", cfg.Cache.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("# Effective configuration (file: %s)\n\n", configPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default $RFI_CONFIG_PATH or ~/.config/rfi.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")
	rootCmd.Flags().Bool("skip-missing", false, "Skip recorded files that no longer exist")

	// dump / restore
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().Bool("gitignore", false, "Record only files tracked by git")
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().Bool("skip-missing", false, "Skip recorded files that no longer exist")

	// clean subcommands
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.AddCommand(cleanTargetDirCmd)
	cleanTargetDirCmd.Flags().String("target-dir", "", "Build output directory (default ./target)")
	cleanTargetDirCmd.Flags().Bool("stale", false, "Delete by age (one week) instead of by package")
	cleanTargetDirCmd.Flags().String("metadata", "", "Read cargo metadata JSON from FILE instead of running cargo")
	cleanCmd.AddCommand(cleanRegistryCmd)
	cleanRegistryCmd.Flags().String("registry-dir", "", "Registry directory (default $CARGO_HOME/registry)")
	cleanRegistryCmd.Flags().Bool("crates", false, "Also delete downloaded archives no package uses")
	cleanRegistryCmd.Flags().String("metadata", "", "Read cargo metadata JSON from FILE instead of running cargo")

	// cache subcommands
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInitCmd)
	cacheCmd.AddCommand(cacheRestoreCmd)
	cacheRestoreCmd.Flags().Bool("skip-missing", false, "Skip recorded files that no longer exist")
	cacheCmd.AddCommand(cacheDumpCmd)
	cacheDumpCmd.Flags().Bool("gitignore", false, "Record only files tracked by git")
	cacheCmd.AddCommand(cacheRunCmd)
	cacheRunCmd.Flags().Bool("skip-missing", false, "Skip recorded files that no longer exist")
	cacheRunCmd.Flags().Bool("gitignore", false, "Record only files tracked by git")

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// config subcommands
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
}
