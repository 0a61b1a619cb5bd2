package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"macrodb/internal/catalog"
	"macrodb/internal/collector"
	"macrodb/internal/config"
	"macrodb/internal/logger"
	"macrodb/internal/metrics"
	"macrodb/internal/model"
	"macrodb/internal/providers"
	"macrodb/internal/providers/dbnomics"
	"macrodb/internal/providers/fpb"
	"macrodb/internal/providers/sdmx"
	"macrodb/internal/store"
	"macrodb/internal/store/sqlite"
)

func main() {
	args := os.Args[1:]
	command := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "":
		err = runDefault(args)
	case "run":
		err = run(args)
	case "latest":
		err = latest(args)
	case "dump":
		err = dump(args)
	case "history":
		err = history(args)
	case "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector [run|latest|dump|history] [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  run       fetch every catalog source and store the results")
	fmt.Fprintln(os.Stderr, "  latest    print the most recent observation of each indicator")
	fmt.Fprintln(os.Stderr, "  dump      print stored observations (all, or one indicator with -code)")
	fmt.Fprintln(os.Stderr, "  history   print recent fetch audit entries")
	fmt.Fprintln(os.Stderr, "  (none)    run, then latest")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -db            sqlite database path (default: $MACRODB_DB_PATH or belgian_macro.db; empty disables persistence)")
	fmt.Fprintln(os.Stderr, "  -catalog       catalog YAML file (default: built-in catalog)")
	fmt.Fprintln(os.Stderr, "  -metrics-file  write Prometheus textfile metrics after a run")
	fmt.Fprintln(os.Stderr, "  -n             history entries to show (default: 20)")
	fmt.Fprintln(os.Stderr, "  -code          dump a single indicator")
	fmt.Fprintln(os.Stderr, "  -from, -to     inclusive period bounds for -code (e.g. 2015, 2020-Q1, 2021-06)")
}

type options struct {
	dbPath      string
	catalogPath string
	metricsFile string
	limit       int
	code        string
	from        string
	to          string
}

func parseOptions(name string, args []string, cfg *config.Config) options {
	var opts options
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&opts.dbPath, "db", cfg.Store.DBPath, "sqlite database path (empty disables persistence)")
	fs.StringVar(&opts.catalogPath, "catalog", cfg.Catalog.Path, "catalog YAML file (empty = built-in)")
	fs.StringVar(&opts.metricsFile, "metrics-file", cfg.App.MetricsFile, "Prometheus textfile output path")
	fs.IntVar(&opts.limit, "n", 20, "number of history entries")
	fs.StringVar(&opts.code, "code", "", "indicator code to dump")
	fs.StringVar(&opts.from, "from", "", "first period to dump (inclusive)")
	fs.StringVar(&opts.to, "to", "", "last period to dump (inclusive)")
	fs.Parse(args)
	return opts
}

type app struct {
	cfg   *config.Config
	opts  options
	log   *zap.Logger
	store store.Store
}

func setup(name string, args []string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	opts := parseOptions(name, args, cfg)

	log, err := logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := openStore(opts.dbPath)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &app{cfg: cfg, opts: opts, log: log, store: st}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func buildRegistry(cfg *config.Config) (*providers.Registry, error) {
	client := providers.NewClient(cfg.HTTP.Client())

	tabular, err := sdmx.New(client)
	if err != nil {
		return nil, err
	}
	series, err := dbnomics.New(client)
	if err != nil {
		return nil, err
	}
	spreadsheet, err := fpb.New(client)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(tabular, series, spreadsheet), nil
}

func runDefault(args []string) error {
	a, err := setup("collector", args)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.collect(); err != nil {
		return err
	}
	return a.printLatest()
}

func run(args []string) error {
	a, err := setup("run", args)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.collect()
}

func latest(args []string) error {
	a, err := setup("latest", args)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.printLatest()
}

func dump(args []string) error {
	a, err := setup("dump", args)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.opts.code != "" {
		return a.dumpIndicator(context.Background())
	}

	records, err := a.store.AllObservations(context.Background())
	if err != nil {
		return err
	}
	current := ""
	for _, record := range records {
		if record.IndicatorCode != current {
			current = record.IndicatorCode
			fmt.Printf("\n%s (%s)\n", record.Name, record.IndicatorCode)
		}
		fmt.Printf("  %-10s %8.1f  %s\n", record.Period, record.Value, record.Status.Label())
	}
	return nil
}

// dumpIndicator prints one indicator between the -from and -to bounds. Codes
// missing from the store are checked against the catalog for a clearer error.
func (a *app) dumpIndicator(ctx context.Context) error {
	from, err := periodBound(a.opts.from)
	if err != nil {
		return err
	}
	to, err := periodBound(a.opts.to)
	if err != nil {
		return err
	}

	indicator, err := a.store.Indicator(ctx, a.opts.code)
	if err != nil {
		return err
	}
	if indicator == nil {
		cat, err := loadCatalog(a.opts.catalogPath)
		if err != nil {
			return err
		}
		meta, err := cat.Lookup(a.opts.code)
		if err != nil {
			return fmt.Errorf("%w (known codes: %s)", err, strings.Join(cat.Codes(), ", "))
		}
		fmt.Printf("%s (%s): nothing stored yet\n", meta.Name, meta.Code)
		return nil
	}

	observations, err := a.store.Observations(ctx, indicator.Code, from, to)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s, %s)\n", indicator.Name, indicator.Code, indicator.Unit)
	for _, observation := range observations {
		fmt.Printf("  %-10s %8.1f  %s\n", observation.Period, observation.Value, observation.Status.Label())
	}
	return nil
}

// periodBound canonicalizes a user-supplied period so it compares correctly
// against stored periods ("2021q4" becomes "2021-Q4").
func periodBound(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	period, ok := model.ParsePeriod(raw)
	if !ok {
		return "", fmt.Errorf("invalid period %q", raw)
	}
	return period.String(), nil
}

func history(args []string) error {
	a, err := setup("history", args)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.store.FetchHistory(context.Background(), a.opts.limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%-22s | %s | %4s rows | %-5s",
			entry.SourceCode,
			entry.FetchedAt.Format("2006-01-02 15:04:05"),
			humanize.Comma(int64(entry.Rows)),
			entry.Status,
		)
		if entry.Status == model.FetchError && entry.Message != "" {
			line += " | " + entry.Message
		}
		fmt.Printf("%s (%s)\n", line, humanize.Time(entry.FetchedAt))
	}
	return nil
}

func (a *app) collect() error {
	cat, err := loadCatalog(a.opts.catalogPath)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(a.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if a.opts.metricsFile != "" {
		m = metrics.New()
	}

	a.log.Info("collector starting", zap.String("db", a.opts.dbPath), zap.Int("series", cat.Len()))
	summary, runErr := collector.New(cat, registry, a.store, collector.Options{Logger: a.log, Metrics: m}).Run(ctx)

	if m != nil {
		if err := m.WriteTextfile(a.opts.metricsFile); err != nil {
			a.log.Error("metrics textfile write failed", zap.String("path", a.opts.metricsFile), zap.Error(err))
		}
	}

	ok, failed := summary.Counts()
	fmt.Printf("collector run complete (run=%s ok=%d failed=%d rows=%s)\n",
		summary.RunID, ok, failed, humanize.Comma(int64(summary.Rows())),
	)
	for _, result := range summary.Results {
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "  FAIL %s: %v\n", result.Code, result.Err)
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return runErr
}

func (a *app) printLatest() error {
	entries, err := a.store.AllLatest(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("  BELGIAN MACRO DATABASE - Latest")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	for _, entry := range entries {
		fmt.Printf("  %-40s | %-10s | %8.1f %-16s | %s\n", entry.Name, entry.Period, entry.Value, entry.Unit, entry.Status.Label())
	}
	return nil
}
