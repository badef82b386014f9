package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wardctl/ward/internal/app"
	"github.com/wardctl/ward/internal/config"
)

func main() {
	mode := flag.String("mode", "", "run mode: api, worker, migrate, or provision-tenant (overrides WARD_MODE)")
	tenantID := flag.String("tenant", "", "tenant id (provision-tenant mode only)")
	deprovision := flag.Bool("deprovision", false, "drop the tenant instead of creating it (provision-tenant mode only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flag overrides env var.
	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Mode == "provision-tenant" {
		if *tenantID == "" {
			fmt.Fprintln(os.Stderr, "error: -tenant is required in provision-tenant mode")
			os.Exit(1)
		}
		if err := app.ProvisionTenant(ctx, cfg, *tenantID, *deprovision); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
