package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"lettera/internal/config"
	"lettera/internal/logging"
	_ "lettera/internal/store/bolt"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: lettera [flags] <command> [args]

commands:
  import <folder> <uid> <file>   parse a message file and cache its headers
  get <folder> <uid>             show a cached entry
  del <folder> <uid>             drop a cached entry
  scan [folder]                  list cached entries
  version                        show the store backend version
  accounts                       manage identity accounts

flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	cachePath := flag.String("cache", "", "header cache path (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Usage = usage
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logging.Init(cfg.Log.Level, cfg.Log.Format)

	cfg.Cache.Path = config.ExpandHome(cfg.Cache.Path)
	cfg.Accounts.Path = config.ExpandHome(cfg.Accounts.Path)
	for _, p := range []string{cfg.Cache.Path, cfg.Accounts.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			log.Fatalf("creating data dir: %v", err)
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "import":
		err = runImport(cfg, args[1:])
	case "get":
		err = runGet(cfg, args[1:])
	case "del":
		err = runDel(cfg, args[1:])
	case "scan":
		err = runScan(cfg, args[1:])
	case "version":
		err = runVersion(cfg)
	case "accounts":
		err = runAccounts(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}
