package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"sutrasearch/internal/chinese"
	"sutrasearch/internal/gateway"
	"sutrasearch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	service := gateway.NewService(engine, chinese.Detect(logger), gateway.SearchConfig{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		FragmentSize:    cfg.Search.FragmentSize,
		MaxFragments:    cfg.Search.MaxFragments,
	}, logger)

	metricsEnabled := cfg.Metrics.Enabled != nil && *cfg.Metrics.Enabled
	telemetry := server.NewTelemetry(cmd.Context(), logger, metricsEnabled)
	api := server.New(service, cfg.Index.Name, telemetry, logger)

	logRequests := cfg.Logging.RequestLogs == nil || *cfg.Logging.RequestLogs
	handler := api.Handler(logRequests)

	logger.Info("sutrasearch API listening",
		"listen", cfg.Server.Listen, "dataDir", cfg.Paths.DataDir,
		"initialized", engine.Exists())
	return http.ListenAndServe(cfg.Server.Listen, handler)
}
