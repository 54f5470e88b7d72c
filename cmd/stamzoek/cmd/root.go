// Package cmd provides the CLI commands for stamzoek.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/internal/config"
	"github.com/stamzoek/stamzoek/internal/embed"
	"github.com/stamzoek/stamzoek/internal/logging"
	"github.com/stamzoek/stamzoek/internal/store"
	"github.com/stamzoek/stamzoek/pkg/version"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

var root rootFlags

// NewRootCmd creates the root command for the stamzoek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stamzoek",
		Short: "Hybrid retrieval over OCR'd genealogical books",
		Long: `Stamzoek turns noisy OCR text from historical genealogical books
into a queryable corpus. It fuses semantic, lexical and phonetic
retrieval signals, expands hits along the book's entry structure,
and can walk family relationships before assembling context for an
answering model.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("stamzoek version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&root.configPath, "config", "stamzoek.yaml", "Path to the configuration file")
	cmd.PersistentFlags().StringVar(&root.dataDir, "data-dir", "", "Index directory (overrides config)")
	cmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// loadConfig loads configuration and applies root flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	if root.dataDir != "" {
		cfg.Paths.DataDir = root.dataDir
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}
	return cfg, nil
}

// setupLogging configures slog for a command run.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.FilePath = cfg.Logging.File
	return logging.Setup(logCfg)
}

// indexPaths resolves the on-disk layout inside the data directory.
type indexPaths struct {
	dataDir  string
	metadata string
	lexical  string
	vectors  string
}

func resolvePaths(cfg *config.Config) indexPaths {
	dir := cfg.Paths.DataDir
	return indexPaths{
		dataDir:  dir,
		metadata: filepath.Join(dir, "metadata.db"),
		lexical:  filepath.Join(dir, "lexical.bleve"),
		vectors:  filepath.Join(dir, "vectors.hnsw"),
	}
}

// openStores opens the metadata store, lexical index and vector store.
// The vector store is loaded from disk when a previous ingest saved
// one; its persisted dimensions win over the configured value.
func openStores(cfg *config.Config) (*store.SQLiteStore, *store.BleveLexicalIndex, *store.HNSWStore, indexPaths, error) {
	paths := resolvePaths(cfg)
	if err := os.MkdirAll(paths.dataDir, 0o755); err != nil {
		return nil, nil, nil, paths, fmt.Errorf("create data directory: %w", err)
	}

	meta, err := store.NewSQLiteStore(paths.metadata)
	if err != nil {
		return nil, nil, nil, paths, err
	}

	lexical, err := store.NewBleveLexicalIndex(paths.lexical)
	if err != nil {
		_ = meta.Close()
		return nil, nil, nil, paths, err
	}

	dims, err := store.ReadVectorStoreDimensions(paths.vectors)
	if err != nil {
		_ = meta.Close()
		_ = lexical.Close()
		return nil, nil, nil, paths, err
	}
	if dims == 0 {
		dims = cfg.Embeddings.Dimensions
	}
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		_ = meta.Close()
		_ = lexical.Close()
		return nil, nil, nil, paths, err
	}
	if _, statErr := os.Stat(paths.vectors); statErr == nil {
		if err := vector.Load(paths.vectors); err != nil {
			_ = meta.Close()
			_ = lexical.Close()
			return nil, nil, nil, paths, err
		}
	}

	return meta, lexical, vector, paths, nil
}

func closeStores(meta *store.SQLiteStore, lexical *store.BleveLexicalIndex, vector *store.HNSWStore, logger *slog.Logger) {
	for name, c := range map[string]interface{ Close() error }{
		"metadata": meta, "lexical": lexical, "vector": vector,
	} {
		if err := c.Close(); err != nil {
			logger.Warn("close store", "store", name, "error", err)
		}
	}
}

// newEmbedder builds the configured embedder, falling back to the
// deterministic hash embedder when the model is unreachable.
func newEmbedder(ctx context.Context, cfg *config.Config, offline bool, logger *slog.Logger) (embed.Embedder, error) {
	embedCfg := cfg.Embeddings
	if offline {
		embedCfg.Provider = "hash"
	}
	return embed.New(ctx, embedCfg, logger)
}
