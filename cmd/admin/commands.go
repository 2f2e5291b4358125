package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/config"
	"github.com/otbox/storefront/core/auth"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/core/order"
	"github.com/otbox/storefront/database"
	"github.com/otbox/storefront/email"
	"github.com/otbox/storefront/random"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func openDB(cfg database.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.StatusCheck(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("reaching db: %w", err)
	}
	return db, nil
}

func migrateCmd(log logrus.FieldLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg struct {
				DB database.Config
			}
			if err := parseConfig(&cfg); err != nil {
				return err
			}

			db, err := openDB(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info("migrations complete")
			return nil
		},
	}
}

func remindCmd(log logrus.FieldLogger) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Email buyers whose orders have been pending for a day",
		Long: `Send one payment reminder per pending order older than 24 hours.

A reminded order is stamped and never reminded again. A failed email leaves
the order untouched so the next run retries it.

Checkout does not create pending orders; only rows written by the earlier
checkout flow are candidates, so "0 processed" is the normal result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg struct {
				DB      database.Config
				Site    config.Site
				Email   config.Email
				Storage struct {
					DownloadTTL time.Duration `conf:"default:120m"`
				}
			}
			if err := parseConfig(&cfg); err != nil {
				return err
			}

			db, err := openDB(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			now := time.Now().UTC()

			if dryRun {
				due, err := order.ListDue(ctx, db, now.Add(-order.ReminderAfter))
				if err != nil {
					return err
				}
				for _, d := range due {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", d.ID, notify.MaskEmail(d.Email), d.Title, notify.Rub(d.Amount))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d due, nothing sent\n", len(due))
				return nil
			}

			mail, err := email.New(email.Config{
				APIKey:  cfg.Email.APIKey,
				URL:     cfg.Email.URL,
				Timeout: cfg.Email.Timeout,
			})
			if err != nil {
				return err
			}

			n := notify.New(mail, notify.Config{
				From:    cfg.Email.From,
				Admin:   cfg.Email.AdminAddress,
				SiteURL: strings.TrimSuffix(cfg.Site.URL, "/"),
				LinkTTL: cfg.Storage.DownloadTTL,
			}, log)

			rep, err := order.SendReminders(ctx, db, n, log, now)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list due orders without sending")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print order counts and revenue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg struct {
				DB database.Config
			}
			if err := parseConfig(&cfg); err != nil {
				return err
			}

			db, err := openDB(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := order.FetchStats(cmd.Context(), db)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending:   %d\n", st.Pending)
			fmt.Fprintf(out, "succeeded: %d\n", st.Succeeded)
			fmt.Fprintf(out, "canceled:  %d\n", st.Canceled)
			fmt.Fprintf(out, "revenue:   %s\n", notify.Rub(st.Revenue))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an admin bearer token and its hash",
		Long: `Generate a random admin token. Give the token to the operator and set
OTBOX_ADMIN_TOKEN_HASH to the hash; the server never stores the token itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if length < auth.MinTokenLength {
				return fmt.Errorf("token must be at least %d characters", auth.MinTokenLength)
			}

			token, err := random.StringSecure(length)
			if err != nil {
				return err
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "token: %s\n", token)
			fmt.Fprintf(os.Stderr, "set OTBOX_ADMIN_TOKEN_HASH=%s\n", hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&length, "length", 48, "token length")
	return cmd
}
