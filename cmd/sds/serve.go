package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkilian/sds/internal/app"
)

var (
	httpAddr string
	grpcAddr string
	noGRPC   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST and gRPC APIs",
	Long: `Serve opens the manifest under the data directory, restores persisted
streams from their snapshots and serves until SIGINT or SIGTERM, flushing
snapshots on the way out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("http-addr") {
			cfg.HTTP.Addr = httpAddr
		}
		if cmd.Flags().Changed("grpc-addr") {
			cfg.GRPC.Addr = grpcAddr
		}
		if noGRPC {
			cfg.GRPC.Enabled = false
		}

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Start(ctx); err != nil {
			return err
		}
		return a.WaitForShutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "REST listen address")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	serveCmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "Disable the gRPC server")
	rootCmd.AddCommand(serveCmd)
}
