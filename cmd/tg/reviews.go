package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskgate/internal/domain"
	"taskgate/internal/engine"
	"taskgate/internal/engine/auth"
	"taskgate/internal/export"
)

func reviewCmd() *cobra.Command {
	r := &cobra.Command{Use: "review", Short: "Work the approval queue"}
	r.AddCommand(reviewListCmd())
	r.AddCommand(reviewShowCmd())
	r.AddCommand(reviewConfigCmd())
	r.AddCommand(reviewTransitionCmd("approve", "Approve a pending or declined entry", engine.Engine.Approve))
	r.AddCommand(reviewTransitionCmd("decline", "Decline a pending entry", engine.Engine.Decline))
	r.AddCommand(reviewTransitionCmd("reopen", "Return a declined entry to pending", engine.Engine.ReturnToPending))
	r.AddCommand(reviewCancelCmd())
	return r
}

func reviewListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review entries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				q, err := e.Queue(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				var entries []domain.ReviewEntry
				switch domain.ReviewStatus(status) {
				case "":
					entries = append(append(append(entries, q.Pending...), q.Declined...), q.Approved...)
				case domain.StatusPending:
					entries = q.Pending
				case domain.StatusApproved:
					entries = q.Approved
				case domain.StatusDeclined:
					entries = q.Declined
				default:
					return fmt.Errorf("--status must be pending, approved or declined")
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Provider", "Name", "Status", "Tasks", "Submitted", "By", "Decided By"})
				for _, en := range entries {
					decided := optionalString(en.ApprovedBy)
					if decided == "" {
						decided = optionalString(en.DeclinedBy)
					}
					tw.AppendRow(table.Row{en.Provider.ID, en.Provider.Name, en.Status, len(en.Tasks), en.SubmittedAt, en.SubmittedBy, decided})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, approved or declined")
	return cmd
}

func reviewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <provider-id>",
		Short: "Show a review entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				entry, err := e.GetEntry(ctx, p, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("%s (%s) %s, submitted %s by %s\n", entry.Provider.Name, entry.Provider.ID, entry.Status, entry.SubmittedAt, entry.SubmittedBy)
				printTasks(entry.Tasks)
				return nil
			})
		},
	}
	return cmd
}

func reviewConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config <provider-id>",
		Short: "Write the submitted bundle without review metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				b, err := e.ReviewConfig(ctx, p, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					return printJSON(b)
				}
				return writeJSONFile(out, b)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")
	return cmd
}

type transitionFunc func(engine.Engine, context.Context, auth.Principal, string) (domain.ReviewEntry, error)

func reviewTransitionCmd(use, short string, run transitionFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <provider-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				entry, err := run(e, ctx, p, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("%s is now %s\n", entry.Provider.ID, entry.Status)
				return nil
			})
		},
	}
	return cmd
}

func reviewCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <provider-id>",
		Short: "Delete a pending or declined entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				if err := e.Cancel(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Printf("cancelled %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	var stdout bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Compile the production configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				art, err := e.Export(ctx, p)
				if err != nil {
					return err
				}
				if stdout {
					return printJSON(art)
				}
				if out == "" {
					out = export.FileName(e.Now())
				}
				if err := writeJSONFile(out, art); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d providers, %d tasks)\n", out, art.TotalProviders, art.TotalTasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (taskgate-production-config-<date>.json when empty)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the artifact instead of writing a file")
	return cmd
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
