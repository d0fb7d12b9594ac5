// Command supervisor runs the HEVC transcode supervisor daemon: it scans
// configured media libraries, watches them for new files, and works a
// single-slot encode queue down to HEVC, exposing its state over a JSON/SSE
// HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelwright/hevcsup/internal/app"
	"github.com/reelwright/hevcsup/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	config.Defaults(v)

	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Scan media libraries and transcode to HEVC",
		Long: `supervisor scans configured media libraries, watches them for new
files, and runs a single encode at a time down to HEVC, replacing files in
place only when the result is smaller.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default none; SUPERVISOR_* env vars and flags apply)")
	cmd.PersistentFlags().Int("port", 0, "API listen port (overrides SUPERVISOR_PORT)")
	cmd.PersistentFlags().String("db-path", "", "database file path (overrides SUPERVISOR_DB_PATH)")
	cmd.PersistentFlags().String("scratch-dir", "", "scratch directory for in-flight transcodes (overrides SUPERVISOR_SCRATCH_DIR)")

	v.BindPFlag("port", cmd.PersistentFlags().Lookup("port"))
	v.BindPFlag("db_path", cmd.PersistentFlags().Lookup("db-path"))
	v.BindPFlag("scratch_dir", cmd.PersistentFlags().Lookup("scratch-dir"))

	cobra.OnInitialize(func() { initConfig(v) })

	return cmd
}

func initConfig(v *viper.Viper) {
	v.SetEnvPrefix("supervisor")
	v.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = os.Getenv("SUPERVISOR_CONFIG")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("warning: could not read config file %q: %v", cfgFile, err)
		}
	}
}

func runServe(v *viper.Viper) error {
	cfg := config.Load(v)

	srv, err := app.CreateServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening on :%d", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("stopped")
	return nil
}
