package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/herbtax/internal/condensed"
	"github.com/TobiSchelling/herbtax/internal/config"
	"github.com/TobiSchelling/herbtax/internal/database"
	"github.com/TobiSchelling/herbtax/internal/pipeline"
	"github.com/TobiSchelling/herbtax/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logCleanup = func() error { return nil }
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "herbtax",
	Short:        "Herb similarity and symptom-based clustering",
	Long:         "herbtax ranks the most similar herbs by their symptom profiles and groups them with hierarchical clustering.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that do not need it
		switch cmd.Name() {
		case "init", "version", "index":
			setupLogging("", "INFO")
			return nil
		}

		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg.Logging.File, cfg.Logging.Level)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logCleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
}

// loadConfig resolves the config file. Without an explicit --config and with
// no file in the search path, the built-in defaults are used.
func loadConfig() (*config.Config, error) {
	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	loaded, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded, nil
}

func setupLogging(file, levelName string) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger, cleanup := config.SetupLogger(file, level)
	slog.SetDefault(logger)
	logCleanup = cleanup
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("herbtax", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/herbtax/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the dictionary path and clustering parameters.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive status and effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Archive: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Archived: %d\n", stats.Runs)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last run: %s\n", *stats.LastRunAt)
		}
		fmt.Printf("  Ranked pairs: %s\n", humanize.Comma(int64(stats.RankedPairs)))
		fmt.Printf("  Clusters: %s\n", humanize.Comma(int64(stats.Clusters)))
		fmt.Printf("  Distinct herbs: %s\n", humanize.Comma(int64(stats.Herbs)))

		c := cfg.Clustering
		fmt.Println("\nSettings:")
		fmt.Printf("  Input: %s\n", cfg.Input.Path)
		fmt.Printf("  Output: %s\n", cfg.Output.Dir)
		fmt.Printf("  Top pairs: %d\n", cfg.Ranking.TopK)
		fmt.Printf("  Clustering: %s distance, %s linkage, %s <= %g, min size %d\n",
			c.Metric, c.Linkage, c.Criterion, c.Threshold, c.MinClusterSize)
		return nil
	},
}

// --- run command ---

var (
	dryRun         bool
	noArchive      bool
	inputPath      string
	outDir         string
	topK           int
	threshold      float64
	metric         string
	linkage        string
	criterion      string
	minClusterSize int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline: load -> encode -> distances -> rank -> cluster -> write -> archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		var db *database.DB
		if !noArchive && !dryRun {
			opened, err := openDB()
			if err != nil {
				return err
			}
			defer opened.Close()
			db = opened
		}

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(ctx)
		} else {
			result = pipe.Run(ctx)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if err := result.Err(); err != nil {
			return err
		}
		if !dryRun {
			fmt.Printf("\nPipeline complete! Outputs in %s\n", result.OutputDir)
			if db != nil {
				fmt.Println("Run 'herbtax serve' to browse the results.")
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Load the input and report sizes without computing")
	runCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Write output files but skip the results archive")
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Dictionary path, http(s) URL or s3://bucket/key (overrides input.path)")
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (overrides output.dir)")
	runCmd.Flags().IntVar(&topK, "top-k", 0, "Number of most similar pairs to report")
	runCmd.Flags().Float64Var(&threshold, "threshold", 0, "Cut threshold")
	runCmd.Flags().StringVar(&metric, "metric", "", "Distance metric: cosine, euclidean or jaccard")
	runCmd.Flags().StringVar(&linkage, "linkage", "", "Linkage method: single, complete, average or ward")
	runCmd.Flags().StringVar(&criterion, "criterion", "", "Cut criterion: distance or inconsistent")
	runCmd.Flags().IntVar(&minClusterSize, "min-cluster-size", 0, "Smallest cluster written to the clusters file")
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Path = inputPath
	}
	if flags.Changed("out") {
		cfg.Output.Dir = outDir
	}
	if flags.Changed("top-k") {
		cfg.Ranking.TopK = topK
	}
	if flags.Changed("threshold") {
		cfg.Clustering.Threshold = threshold
	}
	if flags.Changed("metric") {
		cfg.Clustering.Metric = metric
	}
	if flags.Changed("linkage") {
		cfg.Clustering.Linkage = linkage
	}
	if flags.Changed("criterion") {
		cfg.Clustering.Criterion = criterion
	}
	if flags.Changed("min-cluster-size") {
		cfg.Clustering.MinClusterSize = minClusterSize
	}
}

// --- archive commands ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.GetRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs archived yet. Create one with: herbtax run")
			return nil
		}

		fmt.Printf("%-8s  %-19s  %6s  %-18s  %s\n", "ID", "CREATED", "HERBS", "METHOD", "CLUSTERS")
		for _, r := range runs {
			created := ""
			if r.CreatedAt != nil {
				created = *r.CreatedAt
			}
			fmt.Printf("%-8s  %-19s  %6d  %-18s  %d of %d\n",
				r.ID[:min(8, len(r.ID))], created, r.EntityCount,
				r.Metric+"/"+r.Linkage, r.KeptCount, r.ClusterCount)
		}
		return nil
	},
}

var showPairs int

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an archived run (latest if no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := findRun(db, args)
		if err != nil {
			return err
		}

		if run.SummaryMarkdown != nil {
			fmt.Print(*run.SummaryMarkdown)
		}

		if showPairs > 0 {
			pairs, err := db.GetRankedPairs(run.ID)
			if err != nil {
				return err
			}
			fmt.Printf("\nTop %d pairs:\n", min(showPairs, len(pairs)))
			for _, p := range pairs[:min(showPairs, len(pairs))] {
				fmt.Printf("  %3d. %s / %s  %.4f\n", p.Rank, p.Herb1, p.Herb2, p.Distance)
			}
		}
		if run.OutputDir != nil {
			fmt.Printf("\nOutput files: %s\n", *run.OutputDir)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().IntVar(&showPairs, "pairs", 0, "Also list this many ranked pairs")
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an archived run (output files are left in place)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := findRun(db, args)
		if err != nil {
			return err
		}
		if _, err := db.DeleteRun(run.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", run.ID)
		return nil
	},
}

func findRun(db *database.DB, args []string) (*database.Run, error) {
	var run *database.Run
	var err error
	if len(args) == 0 {
		run, err = db.GetLatestRun()
	} else {
		run, err = db.GetRun(args[0])
	}
	if err != nil {
		return nil, err
	}
	if run == nil {
		if len(args) == 0 {
			return nil, errors.New("no runs archived yet")
		}
		return nil, fmt.Errorf("run %s not found", args[0])
	}
	return run, nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local results viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- index command ---

var indexCmd = &cobra.Command{
	Use:   "index <n> <k> | <n> <i> <j>",
	Short: "Convert between condensed positions and entity pairs",
	Long: "With two arguments, print the pair (i, j) stored at condensed position k for n entities.\n" +
		"With three, print the condensed position of pair (i, j).",
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		nums := make([]int, len(args))
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("invalid number %q", a)
			}
			nums[i] = v
		}

		if len(nums) == 2 {
			i, j, err := condensed.Pair(nums[0], nums[1])
			if err != nil {
				return err
			}
			fmt.Printf("%d %d\n", i, j)
			return nil
		}

		k, err := condensed.Index(nums[0], nums[1], nums[2])
		if err != nil {
			return err
		}
		fmt.Println(k)
		return nil
	},
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.DatabasePath())
}
