package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"

	"github.com/a2n2k3p4/payments-relay/handlers"
)

func serveCmd() *cobra.Command {
	var accessLog bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			bus := EventBus.New()
			if err := a.reconciler.Subscribe(bus); err != nil {
				return err
			}
			defer bus.WaitAsync()

			scheduler, err := a.reconciler.Schedule(a.cfg.ReconcileInterval)
			if err != nil {
				return err
			}
			defer scheduler.Stop()

			var webhook *handlers.WebhookHandler
			if a.cfg.StripeWebhookSecret != "" {
				webhook = handlers.NewWebhookHandler(a.provider, a.intents, bus, a.log)
			} else {
				a.log.Warn("STRIPE_WEBHOOK_SECRET not set, /webhooks/stripe disabled")
			}

			srv := handlers.NewApp(
				handlers.ServerConfig{AllowOrigins: a.cfg.CORSAllowOrigins, AccessLog: accessLog},
				handlers.NewPaymentHandler(a.intents, a.log),
				webhook,
				handlers.NewReconciliationHandler(a.store, a.log),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				a.log.Infof("server listening on %s", a.cfg.ListenAddr())
				errc <- srv.Listen(a.cfg.ListenAddr())
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				a.log.Info("shutting down")
				return srv.ShutdownWithContext(context.Background())
			}
		},
	}
	cmd.Flags().BoolVar(&accessLog, "access-log", true, "log every request")
	return cmd
}
