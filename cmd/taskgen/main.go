package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-taskgen/internal/bus"
	"github.com/loqalabs/loqa-taskgen/internal/config"
	"github.com/loqalabs/loqa-taskgen/internal/protocol"
	"github.com/loqalabs/loqa-taskgen/internal/taskgen"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

type options struct {
	natsURL string
	noDelay bool
	seed    uint64
	asJSON  bool
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "taskgen",
		Short:        "Generate placeholder task descriptions and subtask checklists",
		Version:      version,
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.natsURL, "nats", "", "Send requests to a running taskgend at this NATS URL instead of generating locally")
	flags.BoolVar(&opts.noDelay, "no-delay", false, "Skip the simulated latency when generating locally")
	flags.Uint64Var(&opts.seed, "seed", 0, "Random seed for local generation (0 = random)")
	flags.BoolVar(&opts.asJSON, "json", false, "Print the raw JSON response")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newDescribeCmd(opts),
		newChecklistCmd(opts),
		newTeamsCmd(),
		newVersionCmd(),
	)
	return root
}

func newDescribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <title>",
		Short: "Generate a user story and acceptance criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			req := protocol.TaskDescriptionRequest{Title: args[0]}
			var resp protocol.TaskDescriptionResponse
			if opts.natsURL != "" {
				if err := remoteRequest(ctx, opts.natsURL, protocol.SubjectDescriptionRequest, req, &resp); err != nil {
					return err
				}
			} else {
				start := time.Now()
				desc, err := localGenerator(opts).GenerateTaskDescription(ctx, req.Title)
				if err != nil {
					return err
				}
				resp = protocol.TaskDescriptionResponse{
					UserStory:          desc.UserStory,
					AcceptanceCriteria: desc.AcceptanceCriteria,
					LatencyMS:          time.Since(start).Milliseconds(),
					Timestamp:          time.Now().UTC(),
				}
			}
			if resp.Error != "" {
				return fmt.Errorf("taskgend: %s", resp.Error)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, resp)
			}
			fmt.Fprintln(out, resp.UserStory)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Acceptance criteria:")
			for _, c := range resp.AcceptanceCriteria {
				fmt.Fprintf(out, "  - %s\n", c)
			}
			return nil
		},
	}
}

func newChecklistCmd(opts *options) *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "checklist <title>",
		Short: "Generate a subtask checklist for a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			req := protocol.SubtaskChecklistRequest{Title: args[0], Team: team}
			var resp protocol.SubtaskChecklistResponse
			if opts.natsURL != "" {
				if err := remoteRequest(ctx, opts.natsURL, protocol.SubjectChecklistRequest, req, &resp); err != nil {
					return err
				}
			} else {
				start := time.Now()
				items, err := localGenerator(opts).GenerateSubtaskChecklist(ctx, req.Title, req.Team)
				if err != nil {
					return err
				}
				resp = protocol.SubtaskChecklistResponse{
					Team:      taskgen.ResolveTeam(req.Team),
					Subtasks:  items,
					LatencyMS: time.Since(start).Milliseconds(),
					Timestamp: time.Now().UTC(),
				}
			}
			if resp.Error != "" {
				return fmt.Errorf("taskgend: %s", resp.Error)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, resp)
			}
			fmt.Fprintf(out, "Subtasks (%s):\n", resp.Team)
			for _, item := range resp.Subtasks {
				fmt.Fprintf(out, "  [ ] %s\n", item)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", taskgen.FallbackTeam, "Team whose subtask pool to draw from")
	return cmd
}

func newTeamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List the known teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, team := range taskgen.Teams() {
				if team == taskgen.FallbackTeam {
					fmt.Fprintf(out, "%s (fallback)\n", team)
					continue
				}
				fmt.Fprintln(out, team)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskgen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func localGenerator(opts *options) *taskgen.Mock {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	genOpts := []taskgen.Option{taskgen.WithSeed(opts.seed), taskgen.WithLogger(logger)}
	if opts.noDelay {
		genOpts = append(genOpts, taskgen.WithLatency(taskgen.LatencyProfile{}, taskgen.LatencyProfile{}))
	}
	return taskgen.NewMock(genOpts...)
}

func remoteRequest(ctx context.Context, url, subject string, req, resp any) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(ctx, config.BusConfig{Servers: []string{url}, ConnectTimeout: 2000}, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Request(ctx, subject, req, resp)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
