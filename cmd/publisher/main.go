package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"macrodb/internal/config"
	"macrodb/internal/export"
	"macrodb/internal/logger"
	"macrodb/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("out", cfg.App.ExportDir, "output directory")
	dbPath := fs.String("db", cfg.Store.DBPath, "sqlite database path")
	formatsCSV := fs.String("format", "csv,json,html", "comma-separated formats (csv, json, html)")
	fs.Parse(args)

	formats, err := export.ParseFormats(*formatsCSV)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid formats:", err)
		os.Exit(2)
	}
	if strings.TrimSpace(*dbPath) == "" {
		fmt.Fprintln(os.Stderr, "db path is required")
		os.Exit(2)
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	st, err := sqlite.New(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(1)
	}
	defer st.Close()

	paths, err := export.New(st, *outDir, log).Export(context.Background(), formats)
	if err != nil {
		log.Error("export failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "export failed:", err)
		os.Exit(1)
	}

	fmt.Printf("publisher build complete (out=%s files=%d)\n", *outDir, len(paths))
	for _, path := range paths {
		fmt.Println("  " + path)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: publisher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out      output directory (default: $MACRODB_EXPORT_DIR or .)")
	fmt.Fprintln(os.Stderr, "  -db       sqlite database path (default: $MACRODB_DB_PATH or belgian_macro.db)")
	fmt.Fprintln(os.Stderr, "  -format   comma-separated formats (default: csv,json,html)")
}
