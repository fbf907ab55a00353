package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/invitations"
	"mystore/internal/pkg/logger"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

func openDB() (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Logging)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, db, nil
}

func newExpireInvitationsCmd() *cobra.Command {
	var dry bool
	var batch int

	cmd := &cobra.Command{
		Use:   "invitations:expire",
		Short: "Mark pending invitations past their deadline as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if batch <= 0 {
				batch = cfg.MyStore.Invitations.SweepBatchSize
			}
			svc := invitations.NewService(db, audit.NewLogger(db), invitations.Config{
				TTLHours:      cfg.MyStore.Invitations.ExpiresHours,
				SystemActorID: cfg.MyStore.SystemActorID,
			})
			_, err = expireInvitations(cmd.Context(), cmd.OutOrStdout(), svc, time.Now(), dry, batch)
			return err
		},
	}
	cmd.Flags().BoolVar(&dry, "dry", false, "List candidates without changing anything")
	cmd.Flags().IntVar(&batch, "batch", 0, "Rows per chunk (defaults to mystore.invitations.sweep_batch_size)")
	return cmd
}

func expireInvitations(ctx context.Context, out io.Writer, svc *invitations.Service, now time.Time, dry bool, batch int) (int, error) {
	if !dry {
		n, err := svc.ExpireDue(ctx, now, invitations.ExpireOptions{BatchSize: batch})
		if err != nil {
			return n, err
		}
		fmt.Fprintf(out, "Expired %d invitation(s).\n", n)
		return n, nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tTENANT\tEXPIRES AT")
	n, err := svc.ExpireDue(ctx, now, invitations.ExpireOptions{
		BatchSize: batch,
		DryRun:    true,
		Visit: func(inv models.Invitation) {
			expires := ""
			if inv.ExpiresAt != nil {
				expires = time.Unix(*inv.ExpiresAt, 0).UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", inv.ID, inv.Email, inv.TenantID, expires)
		},
	})
	tw.Flush()
	if err != nil {
		return n, err
	}
	fmt.Fprintf(out, "%d invitation(s) would expire.\n", n)
	return n, nil
}

func newPruneSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions:prune",
		Short: "Delete sessions idle longer than the configured lifetime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := accounts.NewService(db, auth.NewTokenService(cfg.JWT, cfg.App.Name),
				access.NewDefaultResolver(cfg.Roles.RoleMap), nil, nil, accounts.Config{
					SessionLifetime: cfg.Session.Lifetime,
				})
			n, err := svc.PruneSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d session(s).\n", n)
			return nil
		},
	}
}
