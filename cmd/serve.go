// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"medquery/cli/internal/server"
)

var (
	serveAddr     string
	serveGRPCAddr string
)

// serveCmd exposes the pipeline over HTTP until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question pipeline over HTTP",
	Long: `The serve command starts the HTTP boundary:

  POST /send_message  answer a question, optionally scoped to subject_id
  POST /query         run the retrieval chain and return columns and rows
  GET  /subjects      list subjects ordered by id
  GET  /health        check the database connection

A gRPC health service on --grpc-addr reports whether the database is reachable.
Stop the server with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		grpcAddr := cfg.Server.GRPCAddr
		if cmd.Flags().Changed("grpc-addr") {
			grpcAddr = serveGRPCAddr
		}

		srv := server.New(server.Deps{
			Asker:     a.pipeline(),
			Retriever: a.retriever(),
			Subjects:  a.directory(),
			Store:     a.store,
		}, server.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}, log)

		pterm.Info.Printf("Serving on %s (database via %s)\n", addr, a.source)
		return srv.Run(ctx, addr, grpcAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config, :5000)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", "", "gRPC health listen address; empty disables it")
}
