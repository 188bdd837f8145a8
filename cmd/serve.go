package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/jobs"
	"mspro-labs/cfe-tariffs/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for scrape runs and results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServer() error {
	// 1. Setup
	appCfg, siteCfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		appCfg.Port = servePort
	}
	if err := os.MkdirAll(appCfg.OutputDir, 0o755); err != nil {
		return err
	}
	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	// 2. Background runner; cancelled scrapes stop cleanly on shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runner := jobs.NewRunner(ctx, database, appCfg.OutputDir, newScrapeFunc(appCfg, siteCfg))

	// 3. Routes
	if !log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           server.NewServer(database, runner, appCfg.OutputDir).SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 4. Start Server
	errCh := make(chan error, 1)
	go func() {
		log.Infof("API listening on http://localhost%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Server shutdown: %v", err)
		}
	}
	runner.Wait()
	return nil
}
