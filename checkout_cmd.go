package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/a2n2k3p4/payments-relay/checkout"
	"github.com/a2n2k3p4/payments-relay/ledger"
	"github.com/a2n2k3p4/payments-relay/logging"
	"github.com/a2n2k3p4/payments-relay/models"
)

// checkoutCmd drives the payment form from a terminal, for support staff and
// smoke tests against a test-mode account.
func checkoutCmd() *cobra.Command {
	var (
		el        checkout.Elements
		address   models.BillingAddress
		userID    string
		amount    int64
		returnURL string
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Confirm a payment intent client-side and apply the credits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			publishableKey := os.Getenv("STRIPE_PUBLISHABLE_KEY")
			ledgerURL := os.Getenv("CREDITS_LEDGER_URL")
			if publishableKey == "" || ledgerURL == "" {
				return errors.New("STRIPE_PUBLISHABLE_KEY and CREDITS_LEDGER_URL must be set")
			}

			cfg := checkout.FormConfig{
				Confirmer: checkout.NewStripeConfirmer(publishableKey, os.Getenv("STRIPE_API_URL"), 30*time.Second),
				Ledger:    ledger.NewClient(ledgerURL, ledgerTimeout),
				UserID:    userID,
				Amount:    amount,
				ReturnURL: returnURL,
				Log:       logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("ENVIRONMENT")),
			}
			if backend := os.Getenv("PAYMENTS_BACKEND_URL"); backend != "" {
				cfg.Reporter = checkout.NewReconciliationClient(backend, ledgerTimeout)
			}

			form := checkout.NewForm(cfg)
			form.Mount(&el)

			out, err := form.Submit(cmd.Context(), address)
			if err != nil {
				return err
			}

			switch out.Kind {
			case checkout.OutcomeNone:
				return errors.New("payment element not ready: --client-secret and --payment-method are required")
			case checkout.OutcomeFailed, checkout.OutcomeLedgerInconsistent:
				return errors.New(out.Message)
			case checkout.OutcomeRedirect:
				fmt.Fprintf(cmd.OutOrStdout(), "Complete authentication at %s\n", out.RedirectURL)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&el.ClientSecret, "client-secret", "", "client secret returned by POST /payment-intents")
	f.StringVar(&el.PaymentMethod, "payment-method", "", "payment method id, e.g. pm_card_visa")
	f.StringVar(&userID, "user", "", "user receiving the credits")
	f.Int64Var(&amount, "amount", 0, "amount charged, in the smallest currency unit")
	f.StringVar(&returnURL, "return-url", "", "where the provider sends the payer after a redirect")
	f.StringVar(&address.Name, "name", "", "billing name")
	f.StringVar(&address.Line1, "line1", "", "address line 1")
	f.StringVar(&address.Line2, "line2", "", "address line 2")
	f.StringVar(&address.City, "city", "", "city")
	f.StringVar(&address.State, "state", "", "state")
	f.StringVar(&address.PostalCode, "postal-code", "", "postal code")
	f.StringVar(&address.Country, "country", "", "two-letter country code")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
