package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/descriptor"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/store"
	"github.com/kozaktomas/face-registry/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Registry web server.
The server exposes profile management and face recognition over an
HTTP API and serves stored face images read-only.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("index", false, "Use the HNSW index for recognition instead of a linear scan")
}

// buildExtractor picks the descriptor extractor: the embedding server client
// when a URL is configured, the local grid extractor otherwise.
func buildExtractor(cfg *config.Config) descriptor.Extractor {
	if cfg.Extractor.URL != "" {
		fmt.Printf("Using embedding server at %s\n", cfg.Extractor.URL)
		return descriptor.NewClient(cfg.Extractor.URL, cfg.Extractor.Dim)
	}
	fmt.Println("No EXTRACTOR_URL set, using the local grid extractor")
	return descriptor.NewGrid()
}

// buildRegistry opens the snapshot store and asset storage and wires the
// pipeline together.
func buildRegistry(cfg *config.Config, useIndex bool) (*registry.Registry, error) {
	st, err := store.Open(cfg.Storage.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("opening profile store: %w", err)
	}
	fmt.Printf("Loaded %d profiles from %s\n", st.Count(), cfg.Storage.SnapshotPath)

	am, err := assets.NewManager(cfg.Storage.FacesDir)
	if err != nil {
		return nil, fmt.Errorf("opening asset storage: %w", err)
	}

	var m matcher.Matcher
	if useIndex {
		idx := matcher.NewIndex()
		m = idx
		fmt.Println("HNSW index enabled for recognition")
	} else {
		m = matcher.NewLinear()
	}

	return registry.New(st, am, buildExtractor(cfg), m, cfg.Matcher.Threshold), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	reg, err := buildRegistry(cfg, mustGetBool(cmd, "index"))
	if err != nil {
		return err
	}

	// Env defaults come from config; an explicitly set flag wins.
	port := cfg.Web.Port
	host := cfg.Web.Host
	if cmd.Flags().Changed("port") {
		port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		host = mustGetString(cmd, "host")
	}

	server := web.NewServer(reg, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Registry on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
