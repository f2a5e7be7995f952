package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/supportflow-io/supportflow/internal/client"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

var ticketsCmd = &cobra.Command{
	Use:     "tickets",
	Aliases: []string{"t"},
	Short:   "Ticket commands",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your tickets, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTicketsList,
}

var ticketsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show ticket details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().GetTicket(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), t)
	},
}

var ticketsCreateCmd = &cobra.Command{
	Use:   "create <title> <description>",
	Short: "File a new ticket",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicketsCreate,
}

var ticketsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark a pending ticket resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().ResolveTicket(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticket %s is %s\n", t.ID, t.Status)
		return nil
	},
}

var ticketsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Wait for a ticket's automated response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchTicket(cmd, args[0])
	},
}

var ticketsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ticket counts by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		counts, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "open      %d\n", counts.Open)
		fmt.Fprintf(w, "pending   %d\n", counts.Pending)
		fmt.Fprintf(w, "resolved  %d\n", counts.Resolved)
		fmt.Fprintf(w, "total     %d\n", counts.Total)
		return nil
	},
}

var (
	listStatus  string
	listLimit   int
	listWatch   bool
	createWatch bool
	watchPoll   time.Duration
)

func init() {
	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsShowCmd)
	ticketsCmd.AddCommand(ticketsCreateCmd)
	ticketsCmd.AddCommand(ticketsResolveCmd)
	ticketsCmd.AddCommand(ticketsWatchCmd)
	ticketsCmd.AddCommand(ticketsStatsCmd)

	ticketsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (open|pending|resolved)")
	ticketsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Max results")
	ticketsListCmd.Flags().BoolVarP(&listWatch, "watch", "w", false, "Keep the list and counters live until interrupted")
	ticketsCreateCmd.Flags().BoolVarP(&createWatch, "watch", "w", false, "Wait for the automated response")
	ticketsCmd.PersistentFlags().DurationVar(&watchPoll, "poll", client.DefaultPollInterval, "Polling interval while watching")
}

func runTicketsList(cmd *cobra.Command, _ []string) error {
	if listStatus != "" {
		if _, err := protocol.ParseTicketStatus(listStatus); err != nil {
			return err
		}
	}
	if listWatch {
		return followTickets(cmd)
	}
	tickets, err := newClient().ListTickets(cmd.Context(), listStatus, listLimit)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tickets")
		return nil
	}
	printTickets(cmd.OutOrStdout(), tickets)
	return nil
}

func runTicketsCreate(cmd *cobra.Command, args []string) error {
	t, err := newClient().CreateTicket(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created ticket %s (%s)\n", t.ID, t.Status)
	if !createWatch {
		return nil
	}
	return watchTicket(cmd, t.ID)
}

func watchTicket(cmd *cobra.Command, id string) error {
	logger := newLogger()
	w := client.NewWatcher(newClient(), client.NewFeedClient(apiURL, apiToken, logger), watchPoll, logger)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "waiting for a response to %s...\n", id)
	t, err := w.Watch(cmd.Context(), id, func(t *protocol.Ticket) {
		fmt.Fprintf(out, "ticket %s is %s\n", t.ID, t.Status)
	})
	if err != nil {
		return err
	}
	if t.HasResponse() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, *t.AIResponse)
	}
	return nil
}

func followTickets(cmd *cobra.Command) error {
	logger := newLogger()
	f := client.NewFollower(newClient(), client.NewFeedClient(apiURL, apiToken, logger), client.DefaultRefreshInterval, logger)
	out := cmd.OutOrStdout()

	err := f.Follow(cmd.Context(), client.NewView(), func(v *client.View) {
		c := v.Counts()
		var shown []*protocol.Ticket
		for _, t := range v.Tickets() {
			if listStatus != "" && string(t.Status) != listStatus {
				continue
			}
			if listLimit > 0 && len(shown) == listLimit {
				break
			}
			shown = append(shown, t)
		}
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintf(out, "open %d  pending %d  resolved %d  total %d\n\n", c.Open, c.Pending, c.Resolved, c.Total)
		if len(shown) == 0 {
			fmt.Fprintln(out, "no tickets")
			return
		}
		printTickets(out, shown)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printTickets(w io.Writer, tickets []*protocol.Ticket) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTITLE")
	for _, t := range tickets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(t.Title, 60))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
