package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"jpe-compiler/internal/build"
	"jpe-compiler/internal/config"
	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/history"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/parser"
	"jpe-compiler/internal/refgraph"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at link time.
var Version = "dev"

// errFailed signals a non-zero exit after diagnostics were already printed.
var errFailed = errors.New("build failed")

// Execute runs the CLI application.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose, quiet bool
	rootCmd := &cobra.Command{
		Use:           "jpec",
		Short:         "Compiler for Just Plain English mod sources",
		Long:          "jpec compiles .jpe mod definitions into deterministic XML tuning files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case verbose:
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			case quiet:
				zerolog.SetGlobalLevel(zerolog.WarnLevel)
			default:
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// projectFlags are shared by every command that loads a project.
type projectFlags struct {
	src       string
	out       string
	namespace string
	workers   int
	history   string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.src, "src", "", "Source directory (default: src, or the project root)")
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Namespace for derived resource ids")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Number of concurrent parse workers")
}

func (f *projectFlags) load(args []string) (*config.Config, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	cfg, err := config.Load(root, config.Overrides{
		SourceDir:  f.src,
		OutputDir:  f.out,
		Namespace:  f.namespace,
		Workers:    f.workers,
		HistoryDSN: f.history,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildCmd() *cobra.Command {
	var pf projectFlags
	var buildID, reportPath string
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "build [project-root]",
		Short: "Parse, validate and generate XML for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.load(args)
			if err != nil {
				return err
			}
			return runBuild(cmd.OutOrStdout(), cfg, buildID, reportPath, !noHistory)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&pf.out, "out", "", "Output directory (default: build)")
	cmd.Flags().StringVar(&pf.history, "history", "", "History store DSN (sqlite://... or postgres://...)")
	cmd.Flags().StringVar(&buildID, "build-id", "", "Build identifier (default: generated ULID)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the build report as JSON to this file")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this build in the history store")
	return cmd
}

// runBuild handles the `build` command.
func runBuild(out io.Writer, cfg *config.Config, buildID, reportPath string, record bool) error {
	ctx, cancel := setupContext()
	defer cancel()

	rep := build.NewBuilder(cfg, nil).Build(ctx, buildID)
	printDiagnostics(out, rep)

	if reportPath != "" {
		if err := rep.WriteFile(reportPath); err != nil {
			return err
		}
		log.Info().Str("path", reportPath).Msg("Report written")
	}
	if record {
		recordHistory(ctx, cfg.HistoryDSN, rep)
	}

	for _, o := range rep.Outputs {
		fmt.Fprintln(out, "wrote", o)
	}
	if !rep.Success {
		return errFailed
	}
	return nil
}

// recordHistory stores rep; failures are logged, never fatal.
func recordHistory(ctx context.Context, dsn string, rep *build.Report) {
	store, err := history.Open(ctx, dsn)
	if err != nil {
		log.Warn().Err(err).Msg("History store unavailable, build not recorded")
		return
	}
	defer store.Close()
	if err := store.Record(ctx, rep); err != nil {
		log.Warn().Err(err).Msg("Failed to record build")
	}
}

func validateCmd() *cobra.Command {
	var pf projectFlags
	cmd := &cobra.Command{
		Use:   "validate [project-root]",
		Short: "Parse and validate a project without generating output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.load(args)
			if err != nil {
				return err
			}
			ctx, cancel := setupContext()
			defer cancel()

			rep := build.NewBuilder(cfg, nil).Validate(ctx)
			printDiagnostics(cmd.OutOrStdout(), rep)
			if rep.Critical() {
				return errFailed
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	var pf projectFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "history [project-root]",
		Short: "List recent builds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.load(args)
			if err != nil {
				return err
			}
			ctx, cancel := setupContext()
			defer cancel()

			store, err := history.Open(ctx, cfg.HistoryDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&pf.history, "history", "", "History store DSN (sqlite://... or postgres://...)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds to list")
	return cmd
}

func graphCmd() *cobra.Command {
	var pf projectFlags
	var dependents string
	cmd := &cobra.Command{
		Use:   "graph [project-root]",
		Short: "Export the entity reference graph to Neo4j",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.load(args)
			if err != nil {
				return err
			}
			return runGraph(cmd.OutOrStdout(), cfg, dependents)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&dependents, "dependents", "", "After export, list entities referencing Kind:name")
	return cmd
}

// runGraph handles the `graph` command.
func runGraph(out io.Writer, cfg *config.Config, dependents string) error {
	var depKind ir.Kind
	var depName string
	if dependents != "" {
		var err error
		if depKind, depName, err = dependentsTarget(dependents); err != nil {
			return err
		}
	}

	ctx, cancel := setupContext()
	defer cancel()

	a := build.NewBuilder(cfg, nil).Analyze(ctx)
	if diag.HasAtLeast(a.Diagnostics, diag.SeverityCritical) {
		for _, d := range a.Diagnostics {
			fmt.Fprintln(out, d.String())
		}
		return errFailed
	}

	driver, err := refgraph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	exporter := refgraph.NewExporter(driver)
	if err := exporter.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}
	stats, err := exporter.Export(ctx, a.Project)
	if err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	fmt.Fprintf(out, "exported %d entities, %d references (%d stale removed)\n", stats.Nodes, stats.Edges, stats.Removed)

	if dependents == "" {
		return nil
	}
	id, ok := a.Project.Resolve(depKind, depName)
	if !ok {
		return fmt.Errorf("no %s named %q", depKind, depName)
	}
	edges, err := exporter.Dependents(ctx, id.String())
	if err != nil {
		return err
	}
	for _, e := range edges {
		fmt.Fprintf(out, "%s -[%s]-> %s\n", e.From, e.Field, e.To)
	}
	return nil
}

// dependentsTarget splits a --dependents value. The kind accepts the same
// spellings as a section header, so "interaction:greet_neighbor" works.
func dependentsTarget(s string) (ir.Kind, string, error) {
	kind, name, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("--dependents wants Kind:name, got %q", s)
	}
	k, ok := parser.NewJPEParser().KindNamed(kind)
	if !ok {
		return "", "", fmt.Errorf("--dependents: unknown kind %q", kind)
	}
	return k, name, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jpec version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "jpec", Version)
		},
	}
}

func printDiagnostics(out io.Writer, rep *build.Report) {
	for _, d := range rep.Diagnostics {
		fmt.Fprintln(out, d.String())
	}
	sum := rep.Summary()
	status := "succeeded"
	if !rep.Success {
		status = "failed"
	}
	fmt.Fprintf(out, "build %s %s: %d critical, %d errors, %d warnings, %d cautions, %d info\n",
		rep.BuildID, status,
		sum[diag.SeverityCritical], sum[diag.SeverityError], sum[diag.SeverityWarning],
		sum[diag.SeverityCaution], sum[diag.SeverityInfo])
}

func printHistory(out io.Writer, entries []history.Entry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUILD\tWHEN\tSTATUS\tDURATION\tDIAGNOSTICS\tOUTPUTS")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			e.BuildID, e.Timestamp.Local().Format(time.DateTime), status,
			time.Duration(e.DurationMS)*time.Millisecond, e.Diagnostics, e.Outputs)
	}
	tw.Flush()
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Warn().Msg("Received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
