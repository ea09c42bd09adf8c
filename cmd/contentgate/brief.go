package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/store"
)

var briefFlags struct {
	file     string
	activate bool
}

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Manage editorial briefs",
}

var briefAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a new brief version from a JSON file",
	RunE:  runBriefAdd,
}

var briefActivateCmd = &cobra.Command{
	Use:   "activate <brief-id>",
	Short: "Make a brief the active one for its page",
	Long: `Activate a brief. The previously active brief of the same item and role
is archived in the same transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runBriefActivate,
}

func init() {
	rootCmd.AddCommand(briefCmd)
	briefCmd.AddCommand(briefAddCmd, briefActivateCmd)

	briefAddCmd.Flags().StringVarP(&briefFlags.file, "file", "f", "", "brief JSON file")
	briefAddCmd.Flags().BoolVar(&briefFlags.activate, "activate", false, "activate the brief after storing it")
	_ = briefAddCmd.MarkFlagRequired("file")
}

func runBriefAdd(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(briefFlags.file)
	if err != nil {
		return fmt.Errorf("read brief: %w", err)
	}
	var b content.Brief
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("parse brief %s: %w", briefFlags.file, err)
	}
	if b.Status == content.BriefActive {
		b.Status = content.BriefValidated
	}
	return withStore(func(st *store.Store) error {
		saved, err := st.SaveBrief(cmd.Context(), b)
		if err != nil {
			return err
		}
		if briefFlags.activate {
			if err := st.ActivateBrief(cmd.Context(), saved.ID); err != nil {
				return err
			}
			saved.Status = content.BriefActive
		}
		fmt.Printf("brief %s stored: %s/%s version %d (%s)\n", saved.ID, saved.ItemID, saved.Role, saved.Version, saved.Status)
		return nil
	})
}

func runBriefActivate(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		if err := st.ActivateBrief(cmd.Context(), args[0]); err != nil {
			return err
		}
		b, err := st.GetBrief(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("brief %s active for %s/%s (version %d)\n", b.ID, b.ItemID, b.Role, b.Version)
		return nil
	})
}
