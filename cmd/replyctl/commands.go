package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/memohai/replyd/db"
	"github.com/memohai/replyd/internal/config"
	idb "github.com/memohai/replyd/internal/db"
	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/version"
)

type globalOptions struct {
	configPath string
	apiURL     string
	token      string
}

func (o *globalOptions) client() (*apiClient, error) {
	base := strings.TrimSpace(o.apiURL)
	if base == "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		base = baseURLFromAddr(cfg.Server.Addr)
	}
	return newAPIClient(base, o.token), nil
}

func replyCmd(opts *globalOptions) *cobra.Command {
	var (
		chatID  string
		userID  string
		mode    string
		p2p     bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reply [text]",
		Short: "Send a message to a local chat and follow the reply until it ends",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			req := replyRequest{
				ChatID:    chatID,
				UserID:    userID,
				Text:      strings.Join(args, " "),
				MessageID: "cli_" + uuid.NewString(),
				P2P:       p2p,
				Mode:      mode,
			}
			return c.replyAndFollow(ctx, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "cli", "Local chat id")
	cmd.Flags().StringVar(&userID, "user", envOr("USER", "cli"), "Sender user id")
	cmd.Flags().StringVar(&mode, "mode", "", "Delivery mode: card or multi_message (server default when empty)")
	cmd.Flags().BoolVar(&p2p, "p2p", true, "Mark the chat as one-to-one")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up following the reply after this long")
	return cmd
}

func migrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version|force N]",
		Short:     "Apply the PostgreSQL schema used by the postgres lock backend",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{idb.MigrateUp, idb.MigrateDown, idb.MigrateVersion, idb.MigrateForce},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			return idb.RunMigrate(log, cfg.Postgres, db.Migrations(), args[0], args[1:])
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "replyctl %s\n", version.Get())
		},
	}
}
