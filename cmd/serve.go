package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/theo-ai/api"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}

			apiCfg, err := loadConfig[api.Config]("")
			if err != nil {
				return err
			}
			if listen != "" {
				apiCfg.ListenAddr = listen
			}

			srv, err := api.New(*apiCfg, a.orchestrator, Version)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (overrides LISTEN_ADDR)")
	return cmd
}
