package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/api"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := api.NewHandler(a.orch, a.engine, a.graph, a.evaluator, a.store, a.cfg.Server.CORSOrigins, a.logger.Named("api"))
	if err := api.Serve(ctx, addr, h.Router(), a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.logger); err != nil {
		exitErr("serve", err)
	}
}
