package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/davis7dotsh/betterctx/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ask endpoint over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")

		api := httpapi.NewServer(a.Orchestrator, a.Logger)

		srv := &http.Server{
			Addr:    addr,
			Handler: api.Router(),
			// Answers stream from a model; allow generous write time.
			WriteTimeout:      10 * time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
		}

		a.Logger.Info("serving HTTP", "addr", addr)

		return srv.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8600", "listen address")
}
