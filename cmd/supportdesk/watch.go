package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/supportdesk/backend/internal/client"
	"github.com/supportdesk/backend/internal/models"
)

var watchFlags struct {
	username string
	password string
	status   string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log in and print the chat queue on every poll",
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.username, "username", "", "staff login")
	f.StringVar(&watchFlags.password, "password", "", "staff password")
	f.StringVar(&watchFlags.status, "status", "waiting", "waiting, active, closed or all")
	_ = watchCmd.MarkFlagRequired("username")
	_ = watchCmd.MarkFlagRequired("password")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL)
	if _, err := api.Login(ctx, watchFlags.username, watchFlags.password); err != nil {
		return err
	}
	defer func() { _ = api.Logout(context.WithoutCancel(ctx)) }()

	out := cmd.OutOrStdout()
	sub := client.Subscribe(ctx, cfg.PollInterval, func(ctx context.Context) error {
		chats, err := api.ListChats(ctx, watchFlags.status)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "-- %d chat(s)\n", len(chats))
		for _, c := range chats {
			fmt.Fprintln(out, formatSummary(c))
		}
		return nil
	}, logger)

	<-sub.Done()
	return sub.Err()
}

func formatSummary(c models.ChatSummary) string {
	assignee := "-"
	if c.AssignedOperatorName != nil {
		assignee = *c.AssignedOperatorName
	}
	last := ""
	if c.LastMessage != nil {
		last = *c.LastMessage
	}
	return fmt.Sprintf("#%d %-8s %-20s %-20s unread=%d %s", c.ID, c.Status, c.ClientName, assignee, c.UnreadCount, last)
}
