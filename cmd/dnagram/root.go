package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/dnagram"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	overrides   []string
	storeURI    string
	ddbTable    string
	compression string
	blobCache   int
	logLevel    string
	logJSON     bool
	memoryLimit int64
	workers     int
	rowsPerSec  int64
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "dnagram",
		Short: "K-mer similarity search over DNA sequences",
		Long: `dnagram extracts k-mer n-gram keys from DNA sequences, flags keys that
appear in too many rows of a column and scores queries against rows with
those keys discounted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	pf.StringArrayVar(&g.overrides, "set", nil, "override a parameter (name=value), repeatable")
	pf.StringVar(&g.storeURI, "store", "mem://", "metadata store: mem://, file:///dir, badger:///dir, s3://bucket/prefix, minio://host/bucket/prefix")
	pf.StringVar(&g.ddbTable, "ddb-table", "", "DynamoDB commit table for s3:// stores")
	pf.StringVar(&g.compression, "compression", "zstd", "record compression for blob stores: none, lz4, zstd")
	pf.IntVar(&g.blobCache, "blob-cache", 0, "records cached in memory for blob stores, 0 to read through")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	pf.Int64Var(&g.memoryLimit, "memory-limit", 0, "bytes of locally cached exclusion sets, 0 for no limit")
	pf.IntVar(&g.workers, "max-workers", 0, "analysis worker slots, 0 for GOMAXPROCS")
	pf.Int64Var(&g.rowsPerSec, "rows-per-sec", 0, "analysis row throttle, 0 for none")

	root.AddCommand(
		newAnalyzeCmd(g),
		newUndoCmd(g),
		newStatusCmd(g),
		newScoreCmd(g),
		newMatchCmd(g),
		newCacheCmd(g),
		newConfigCmd(g),
	)
	return root
}

// loadConfig reads the configuration file, the DNAGRAM_* environment and
// the --set overrides, in that order.
func (g *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	for _, kv := range g.overrides {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return config.Config{}, fmt.Errorf("--set %q: want name=value", kv)
		}
		if err := cfg.Set(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

func (g *globalFlags) logger() (*dnagram.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	if g.logJSON {
		return dnagram.NewJSONLogger(level), nil
	}
	return dnagram.NewTextLogger(level), nil
}

// openEngine builds an engine over the configured store. The returned
// cleanup closes both.
func (g *globalFlags) openEngine(cmd *cobra.Command) (*dnagram.Engine, func(), error) {
	ctx := cmd.Context()

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := g.logger()
	if err != nil {
		return nil, nil, err
	}
	comp, err := metastore.ParseCompression(g.compression)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, g.storeURI, storeOptions{
		compression: comp,
		ddbTable:    g.ddbTable,
		blobCache:   g.blobCache,
		logger:      logger.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	eng, err := dnagram.New(ctx,
		dnagram.WithConfig(cfg),
		dnagram.WithStore(store),
		dnagram.WithLogger(logger),
		dnagram.WithMemoryLimit(g.memoryLimit),
		dnagram.WithMaxWorkers(g.workers),
		dnagram.WithRowsPerSecond(g.rowsPerSec),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return eng, func() {
		_ = eng.Close()
		_ = store.Close()
	}, nil
}
