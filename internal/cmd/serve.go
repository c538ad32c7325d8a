package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lognorm/internal/server"
	"lognorm/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload server",
	Long: `Serve the upload form, process uploads through the normalization
pipeline, and offer the processed CSV files for download.

Examples:
  lognorm serve
  lognorm serve -c lognorm.yml
  LOGNORM_API_KEY=... lognorm serve --metrics-backend prometheus`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := store.NewFiles(cfg.Storage.UploadsDir, cfg.Storage.ProcessedDir)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	catalog, err := store.OpenCatalog(ctx, cfg.Storage.CatalogDSN)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	backend, prom, err := buildMetrics(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("close metrics backend: %v", err)
		}
	}()

	var promHandler http.Handler
	if prom != nil {
		promHandler = prom.Handler()
	}
	srv := server.New(cfg, buildPipeline(cfg, backend), files, catalog, promHandler)

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("lognorm listening on %s", cfg.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
