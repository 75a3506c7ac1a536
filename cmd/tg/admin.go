package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskgate/internal/engine"
	"taskgate/internal/engine/auth"
	"taskgate/internal/repo"
)

func partnerCmd() *cobra.Command {
	pc := &cobra.Command{Use: "partner", Short: "Manage partner accounts"}
	pc.AddCommand(partnerLinkCmd())
	pc.AddCommand(partnerListCmd())
	pc.AddCommand(partnerUnlinkCmd())
	return pc
}

func partnerLinkCmd() *cobra.Command {
	var email, providerID string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Allow an email to edit a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				acct, err := e.LinkPartner(ctx, p, email, providerID)
				if err != nil {
					return err
				}
				return printJSONOrTable(acct)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "partner email")
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func partnerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List linked partner accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				accts, err := e.ListPartners(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(accts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Email", "Provider", "Linked"})
				for _, a := range accts {
					tw.AppendRow(table.Row{a.Email, a.ProviderID, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func partnerUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <email>",
		Short: "Remove a stored partner link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				if err := e.UnlinkPartner(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Printf("unlinked %s\n", args[0])
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apiKeyCreateCmd())
	ak.AddCommand(apiKeyListCmd())
	ak.AddCommand(apiKeyRevokeCmd())
	return ak
}

func apiKeyCreateCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key acting as email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				plain, key, err := e.CreateAPIKey(ctx, p, email, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{
						"id":         key.ID,
						"email":      key.Email,
						"name":       key.Name,
						"key":        plain,
						"created_at": key.CreatedAt,
					})
				}
				fmt.Printf("api key %s for %s\n%s\n(shown once; send it as X-Api-Key)\n", key.ID, key.Email, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				keys, err := e.ListAPIKeys(ctx, p, email)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Email, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "only keys acting as email")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				if err := e.RevokeAPIKey(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Printf("revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				evts, err := e.AuditLog(ctx, p, repo.EventFilter{EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, ev := range evts {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += "/" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, entity, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}
