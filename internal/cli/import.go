package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"sutrasearch/internal/chinese"
	"sutrasearch/internal/ingest"
)

var (
	importSource       string
	importForce        bool
	importSkipExisting bool
	importBatchSize    int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load scripture source files into the index",
	Long: `Parses every .txt file in the source directory and indexes the documents
in fixed-size batches, with one durability sync after the final batch.

The index is created when absent. When it already exists the command refuses
to run unless --force (destroy and recreate the index) or --skip-existing
(only add documents not yet indexed) is given.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "directory of scripture source files (defaults to paths.source_dir)")
	importCmd.Flags().BoolVar(&importForce, "force", false, "destroy and recreate an existing index before importing")
	importCmd.Flags().BoolVar(&importSkipExisting, "skip-existing", false, "add to an existing index, leaving indexed documents untouched")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "documents per bulk batch (defaults to ingestion.batch_size)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if !engine.Exists() {
		if _, err := engine.CreateIndex(defaultSchema()); err != nil {
			return err
		}
	} else if importForce {
		if err := engine.DeleteIndex(); err != nil {
			return err
		}
		if _, err := engine.CreateIndex(defaultSchema()); err != nil {
			return err
		}
		logger.Info("index recreated", "index", cfg.Index.Name)
	} else if !importSkipExisting {
		logger.Warn("index already exists, refusing to import", "index", cfg.Index.Name)
		cmd.Printf("index %q already exists; pass --force to recreate it or --skip-existing to add new documents\n",
			cfg.Index.Name)
		return nil
	}

	source := importSource
	if source == "" {
		source = cfg.Paths.SourceDir
	}
	batchSize := importBatchSize
	if batchSize == 0 {
		batchSize = cfg.Ingestion.BatchSize
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Ingestion.Timeout)
	defer cancel()

	pipeline := ingest.NewPipeline(engine, chinese.Detect(logger), ingest.Options{
		BatchSize:    batchSize,
		ParseWorkers: cfg.Ingestion.ParseWorkers,
		SkipExisting: importSkipExisting,
	}, logger)

	report, err := pipeline.Run(ctx, source)
	if err != nil {
		return err
	}

	cmd.Printf("run %s: %d files, %d indexed, %d skipped, %d failed in %s\n",
		report.RunID, report.Files, report.Indexed, report.Skipped,
		len(report.Failures), report.Duration.Round(time.Millisecond))
	for _, failure := range report.Failures {
		cmd.Printf("  failed %s: %s\n", failure.ID, failure.Reason)
	}
	return nil
}
