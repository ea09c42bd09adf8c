package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/store"
)

var rollbackFlags struct {
	item    string
	role    string
	version string
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Point a page back at an earlier content version",
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().StringVar(&rollbackFlags.item, "item", "", "item id")
	rollbackCmd.Flags().StringVar(&rollbackFlags.role, "role", "", "page role")
	rollbackCmd.Flags().StringVar(&rollbackFlags.version, "version", "", "version id to restore (see inspect versions)")
}

func runRollback(cmd *cobra.Command, _ []string) error {
	if err := requireItemRole(rollbackFlags.item, rollbackFlags.role); err != nil {
		return err
	}
	if rollbackFlags.version == "" {
		return errors.New("--version is required")
	}
	return withStore(func(st *store.Store) error {
		if err := st.Rollback(cmd.Context(), rollbackFlags.item, content.Role(rollbackFlags.role), rollbackFlags.version); err != nil {
			return err
		}
		fmt.Printf("%s/%s now serves version %s\n", rollbackFlags.item, rollbackFlags.role, rollbackFlags.version)
		return nil
	})
}
