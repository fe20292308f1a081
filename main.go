package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/a2n2k3p4/payments-relay/config"
	"github.com/a2n2k3p4/payments-relay/intents"
	"github.com/a2n2k3p4/payments-relay/ledger"
	"github.com/a2n2k3p4/payments-relay/logging"
	"github.com/a2n2k3p4/payments-relay/providers"
	"github.com/a2n2k3p4/payments-relay/reconcile"
)

const ledgerTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "payments",
		Short:         "Payment intent relay and credits reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), reconcileCmd(), checkoutCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything the backend commands share.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	store      *reconcile.Store
	intents    *intents.Service
	provider   *providers.Stripe
	reconciler *reconcile.Reconciler
}

func bootstrap() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.Environment)

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}); err != nil {
		return nil, nil, fmt.Errorf("init sentry: %w", err)
	}
	cleanup := func() { sentry.Flush(2 * time.Second) }

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	store := reconcile.NewStore(db)
	if err := store.Migrate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	provider, err := providers.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	svc := intents.NewService(provider, log)
	credits := ledger.NewClient(cfg.CreditsLedgerURL, ledgerTimeout)

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		intents:    svc,
		provider:   provider,
		reconciler: reconcile.NewReconciler(store, svc, credits, log, cfg.ReconcileMaxAttempts),
	}, cleanup, nil
}
