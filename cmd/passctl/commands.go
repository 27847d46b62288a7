package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"passpay/internal/config"
	"passpay/pkg/utils"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over open transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				report, err := d.Reconciliation.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("scanned=%d polled=%d settled=%d fallbacks=%d skipped=%d errors=%d in %s\n",
					report.Scanned, report.Polled, report.Settled, report.Fallbacks, report.Skipped, report.Errors, report.Duration)
				return nil
			})
		},
	}
}

func policiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Policy number maintenance",
	}

	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Allocate policy numbers for activated subscriptions that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				report, err := d.Activation.Backfill(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Printf("scanned=%d issued=%d failed=%d resolved=%d\n", report.Scanned, report.Issued, report.Failed, report.Resolved)
				return nil
			})
		},
	}
	backfill.Flags().IntP("limit", "n", 0, "Maximum subscriptions to process (0 = all)")

	cmd.AddCommand(backfill)
	return cmd
}

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Administrative payment operations",
	}

	expire := &cobra.Command{
		Use:   "expire",
		Short: "Time out transactions abandoned for longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				n, err := d.Reconciliation.Expire(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Printf("expired %d transaction(s)\n", n)
				return nil
			})
		},
	}
	expire.Flags().Duration("older-than", 24*time.Hour, "Age after which an open transaction is abandoned")

	cancel := &cobra.Command{
		Use:   "cancel [transaction-number]",
		Short: "Cancel an open payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				out, err := d.Reconciliation.Cancel(ctx, args[0], reason)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s -> %s\n", args[0], out.Decision.From, out.Decision.To)
				return nil
			})
		},
	}
	cancel.Flags().StringP("reason", "r", "cancelled by operator", "Reason recorded on the transaction")

	cmd.AddCommand(expire, cancel)
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Manual reconciliation queue",
	}

	flagged := &cobra.Command{
		Use:   "flagged",
		Short: "List payments waiting for manual reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				rows, err := d.Activation.ListFlagged(ctx, limit)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("no flagged payments")
					return nil
				}
				for _, p := range rows {
					fmt.Printf("%-24s %-13s %12s  %s\n", p.TransactionNumber, p.Operator, p.GrossAmount.StringFixed(2), p.ReconciliationNote)
				}
				return nil
			})
		},
	}
	flagged.Flags().IntP("limit", "n", 50, "Maximum rows")

	retry := &cobra.Command{
		Use:   "retry [transaction-number]",
		Short: "Retry policy activation for a flagged payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				res, err := d.Activation.Retry(ctx, args[0])
				if err != nil {
					return err
				}
				if res.Flagged {
					return fmt.Errorf("%s is still flagged", args[0])
				}
				if res.Policy != nil {
					fmt.Printf("%s: policy %s\n", args[0], res.Policy.Code)
				} else {
					fmt.Printf("%s: resolved\n", args[0])
				}
				return nil
			})
		},
	}

	cmd.AddCommand(flagged, retry)
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [operator]",
		Short: "Query the collection account balance (mtn_money or airtel_money)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, d deps) error {
				bal, err := d.Operators.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(bal)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API token management",
	}

	issue := &cobra.Command{
		Use:   "issue [subject]",
		Short: "Issue a signed token for the admin endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.JWTSecret) == "" {
				return utils.ErrJWTNotConfigured
			}
			utils.ConfigureJWT(cfg.JWTSecret)

			token, err := utils.CreateToken(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	issue.Flags().String("role", "admin", "Role claim")
	issue.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")

	cmd.AddCommand(issue)
	return cmd
}
