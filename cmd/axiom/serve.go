package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lemonberrylabs/axiom/pkg/api"
	grpcapi "github.com/lemonberrylabs/axiom/pkg/api/grpc"
	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/store"
	"github.com/lemonberrylabs/axiom/web"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and gRPC program APIs and the dashboard",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("project", "", "Project ID for API paths (default my-project, env PROJECT)")
	cmd.Flags().String("location", "", "Location for API paths (default us-central1, env LOCATION)")
	cmd.Flags().String("programs-dir", "", "Directory of .axi programs to deploy at startup (env PROGRAMS_DIR)")
	return cmd
}

type serveConfig struct {
	addr        string
	grpcAddr    string
	project     string
	location    string
	programsDir string
}

func loadServeConfig(cmd *cobra.Command) serveConfig {
	port := envOrDefault("PORT", "8787")
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = fmt.Sprintf("%d", v)
	}

	grpcPort := envOrDefault("GRPC_PORT", "8788")
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		grpcPort = fmt.Sprintf("%d", v)
	}

	host := envOrDefault("HOST", "0.0.0.0")
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}

	cfg := serveConfig{
		addr:        fmt.Sprintf("%s:%s", host, port),
		grpcAddr:    fmt.Sprintf("%s:%s", host, grpcPort),
		project:     envOrDefault("PROJECT", "my-project"),
		location:    envOrDefault("LOCATION", "us-central1"),
		programsDir: os.Getenv("PROGRAMS_DIR"),
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		cfg.project = v
	}
	if v, _ := cmd.Flags().GetString("location"); v != "" {
		cfg.location = v
	}
	if v, _ := cmd.Flags().GetString("programs-dir"); v != "" {
		cfg.programsDir = v
	}
	return cfg
}

func serve(cmd *cobra.Command, args []string) error {
	cfg := loadServeConfig(cmd)

	s := store.New()
	cache := runtime.NewProgramCache()
	server := api.New(s, cache, api.WithRequestLog(os.Stderr))

	if cfg.programsDir != "" {
		if _, err := server.LoadDir(cfg.programsDir, cfg.project, cfg.location); err != nil {
			log.Printf("Warning: failed to load programs directory: %v", err)
		}
	}

	ui := web.New(s, cache, cfg.project, cfg.location)
	ui.Register(server.App())

	grpcServer := grpcapi.New(s, cache)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.grpcAddr)
		if err := grpcServer.Serve(cfg.grpcAddr); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Axiom listening on %s (project=%s, location=%s)", cfg.addr, cfg.project, cfg.location)
	return server.Listen(cfg.addr)
}
