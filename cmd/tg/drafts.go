package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskgate/internal/blob"
	"taskgate/internal/domain"
	"taskgate/internal/engine"
	"taskgate/internal/engine/auth"
)

func draftCmd() *cobra.Command {
	d := &cobra.Command{Use: "draft", Short: "Edit a provider draft"}
	d.AddCommand(draftShowCmd())
	d.AddCommand(draftSaveCmd())
	d.AddCommand(draftDeleteCmd())
	d.AddCommand(draftValidateCmd())
	d.AddCommand(draftExportCmd())
	d.AddCommand(draftIconCmd())
	return d
}

func draftShowCmd() *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				d, err := e.GetDraft(ctx, p, providerID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s (%s) version %d\n", d.Bundle.Provider.Name, d.Bundle.Provider.ID, d.Version)
				printTasks(d.Bundle.Tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func draftSaveCmd() *cobra.Command {
	var providerID, file string
	var version int64
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Replace the draft with a bundle file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBundle(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				d, err := e.SaveDraft(ctx, p, providerID, b, version)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("saved draft %s at version %d (%d tasks)\n", providerID, d.Version, len(d.Bundle.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&file, "file", "", "bundle JSON file")
	cmd.Flags().Int64Var(&version, "version", -1, "expected draft version (-1 overwrites, 0 creates)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func draftDeleteCmd() *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Discard the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				if err := e.DeleteDraft(ctx, p, providerID); err != nil {
					return err
				}
				fmt.Printf("deleted draft %s\n", providerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func draftValidateCmd() *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the stored draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				res, err := e.ValidateDraft(ctx, p, providerID)
				if err != nil {
					return err
				}
				if err := printValidation(res); err != nil {
					return err
				}
				if !res.Valid() {
					return fmt.Errorf("%d validation error(s)", len(res.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func draftExportCmd() *cobra.Command {
	var providerID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the draft as a clean bundle file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				b, err := e.ExportDraft(ctx, p, providerID)
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
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func draftIconCmd() *cobra.Command {
	icon := &cobra.Command{Use: "icon", Short: "Manage draft icons"}
	icon.AddCommand(draftIconSetCmd())
	icon.AddCommand(draftIconRemoveCmd())
	return icon
}

func draftIconSetCmd() *cobra.Command {
	var providerID, slot, file string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Upload an icon and point the draft at it",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				d, err := e.UploadIcon(ctx, p, providerID, blob.Slot(slot), filepath.Ext(file), f)
				if err != nil {
					return err
				}
				return printJSONOrTable(d.Bundle.Provider)
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&slot, "slot", string(blob.SlotLight), "light, dark, bg_light or bg_dark")
	cmd.Flags().StringVar(&file, "file", "", "image file (png, jpg, jpeg, webp or gif)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func draftIconRemoveCmd() *cobra.Command {
	var providerID, slot string
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove an icon from the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				d, err := e.RemoveIcon(ctx, p, providerID, blob.Slot(slot))
				if err != nil {
					return err
				}
				return printJSONOrTable(d.Bundle.Provider)
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&slot, "slot", string(blob.SlotLight), "light, dark, bg_light or bg_dark")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func submitCmd() *cobra.Command {
	var providerID, file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the draft (or a bundle file) for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				var (
					entry domain.ReviewEntry
					err   error
				)
				if file != "" {
					b, rerr := readBundle(file)
					if rerr != nil {
						return rerr
					}
					if b.Provider.ID != "" && b.Provider.ID != providerID {
						return fmt.Errorf("bundle provider id %q does not match --provider %q", b.Provider.ID, providerID)
					}
					b.Provider.ID = providerID
					entry, err = e.Submit(ctx, p, b)
				} else {
					entry, err = e.SubmitDraft(ctx, p, providerID)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("submitted %s: %s (%d tasks)\n", providerID, entry.Status, len(entry.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id")
	cmd.Flags().StringVar(&file, "file", "", "bundle JSON file (the stored draft when empty)")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func defaultCmd() *cobra.Command {
	d := &cobra.Command{Use: "default", Short: "Manage the default configuration"}
	d.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				b, err := e.GetDefault(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				fmt.Printf("%s (%s) updated %s\n", b.Provider.Name, b.Provider.ID, b.UpdatedAt)
				printTasks(b.Tasks)
				return nil
			})
		},
	})
	d.AddCommand(defaultSetCmd())
	return d
}

func defaultSetCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the default configuration with a bundle file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBundle(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				saved, err := e.SaveDefault(ctx, p, b)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(saved)
				}
				fmt.Printf("saved default config %s (%d tasks)\n", saved.Provider.ID, len(saved.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "bundle JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Difficulty", "Platforms"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.DisplayName, t.Type, t.Difficulty, t.Platforms})
	}
	tw.Render()
}
