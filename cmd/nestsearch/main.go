// Command nestsearch runs the hybrid search and retrieval service for
// the OWASP community knowledge platform.
//
// Usage:
//
//	nestsearch serve --config config.yaml
//	nestsearch ingest --all --input entities.json
//	nestsearch ingest --entity-type project --key juice-shop
//	nestsearch reindex --all
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/owasp/nest-search/pkg/config"
)

// errConfig marks fatal configuration errors, surfaced as exit code 2.
var errConfig = errors.New("configuration error")

// errPartial marks runs where some items failed, surfaced as exit code 1
// with details already on stderr.
var errPartial = errors.New("partial failure")

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Ingest  IngestCmd  `cmd:"" help:"Ingest entities: chunk, embed, and index."`
	Reindex ReindexCmd `cmd:"" help:"Drop and recreate engine collections."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

func loadConfig(path string) (*config.Config, error) {
	config.LoadDotEnv()
	if path == "" {
		cfg := &config.Config{}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", errConfig, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, nil
}

func main() {
	cli := CLI{}
	k := kong.Parse(&cli,
		kong.Name("nestsearch"),
		kong.Description("Hybrid search and retrieval service for the OWASP community platform."),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = k.Run(&cli)
	switch {
	case err == nil:
	case errors.Is(err, errConfig):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	case errors.Is(err, errPartial):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
