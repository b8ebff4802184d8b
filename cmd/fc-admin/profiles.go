package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KasunDA/fc-admin/internal/config"
	"github.com/KasunDA/fc-admin/internal/directory"
	"github.com/KasunDA/fc-admin/internal/profile"
	"github.com/KasunDA/fc-admin/internal/session"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect saved profiles",
	Long:  `List, show and delete profiles in the configured storage backend without running the server`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, asm *profile.Assembler) error {
			entries, err := asm.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No profiles")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-40s %s\n", e.ID, e.DisplayName)
			}
			return nil
		})
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Print a profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, asm *profile.Assembler) error {
			p, err := asm.Get(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		})
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <uid>",
	Short: "Delete a profile and its index entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAssembler(cmd.Context(), func(ctx context.Context, asm *profile.Assembler) error {
			if err := asm.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage principals known to the directory backend",
}

var directoryAddCmd = &cobra.Command{
	Use:   "add <kind> <name>...",
	Short: "Register users, groups, hosts or hostgroups",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := directory.ParseKind(args[0])
		if err != nil {
			return err
		}
		return withDirectory(cmd.Context(), func(ctx context.Context, store *directory.Store) error {
			for _, name := range args[1:] {
				if err := store.AddPrincipal(ctx, kind, name); err != nil {
					return err
				}
			}
			fmt.Printf("Added %d %s(s)\n", len(args)-1, kind)
			return nil
		})
	},
}

var directoryListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List principals of one kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := directory.ParseKind(args[0])
		if err != nil {
			return err
		}
		return withDirectory(cmd.Context(), func(ctx context.Context, store *directory.Store) error {
			names, err := store.Principals(ctx, kind)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		})
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)

	directoryCmd.AddCommand(directoryAddCmd)
	directoryCmd.AddCommand(directoryListCmd)
}

// withAssembler runs fn against the configured storage. The assembler has
// no pending deploys, so only index and record operations are meaningful.
func withAssembler(ctx context.Context, fn func(context.Context, *profile.Assembler) error) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	storage, _, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()
	return fn(orBackground(ctx), profile.NewAssembler(session.NewDeploys(), storage))
}

func withDirectory(ctx context.Context, fn func(context.Context, *directory.Store) error) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := directory.Open(cfg.Profiles.DirectoryDB)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer store.Close()
	return fn(orBackground(ctx), store)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
