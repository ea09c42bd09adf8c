package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/orchestrator"
	"github.com/ak125/contentgate/internal/store"
)

var inspectFlags struct {
	item    string
	role    string
	last    int
	jsonOut bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show stored decisions and content versions",
}

var inspectDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List the most recent decisions of a page",
	RunE:  runInspectDecisions,
}

var inspectVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the content versions of a page, newest first",
	RunE:  runInspectVersions,
}

var inspectDecisionCmd = &cobra.Command{
	Use:   "decision <decision-id>",
	Short: "Show one decision with its repair passes",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectDecision,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectDecisionsCmd, inspectVersionsCmd, inspectDecisionCmd)

	inspectCmd.PersistentFlags().StringVar(&inspectFlags.item, "item", "", "item id")
	inspectCmd.PersistentFlags().StringVar(&inspectFlags.role, "role", "", "page role (router, advice, reference)")
	inspectCmd.PersistentFlags().IntVar(&inspectFlags.last, "last", 20, "show N most recent rows")
	inspectCmd.PersistentFlags().BoolVar(&inspectFlags.jsonOut, "json", false, "output as JSON instead of table")
}

func withStore(fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #region decisions

type decisionRow struct {
	ID       string  `json:"id"`
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Reason   string  `json:"reason"`
	Score    float64 `json:"quality_score"`
	Canary   bool    `json:"canary"`
	Error    string  `json:"error,omitempty"`
	Finished string  `json:"finished_at"`
	TookMS   int64   `json:"took_ms"`
}

func runInspectDecisions(cmd *cobra.Command, _ []string) error {
	if err := requireItemRole(inspectFlags.item, inspectFlags.role); err != nil {
		return err
	}
	return withStore(func(st *store.Store) error {
		recs, err := st.ListDecisions(cmd.Context(), inspectFlags.item, content.Role(inspectFlags.role), inspectFlags.last)
		if err != nil {
			return err
		}
		rows := make([]decisionRow, len(recs))
		for i, r := range recs {
			rows[i] = decisionRow{
				ID: r.ID, JobID: r.JobID, Status: r.Status, Reason: r.Reason,
				Score: r.QualityScore, Canary: r.Canary, Error: r.Error,
				Finished: r.FinishedAt.Format(time.RFC3339),
				TookMS:   r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
			}
		}
		if inspectFlags.jsonOut {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "no decisions found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FINISHED\tSTATUS\tREASON\tSCORE\tCANARY\tMS\tID\t")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%t\t%d\t%s\t\n", r.Finished, r.Status, r.Reason, r.Score, r.Canary, r.TookMS, r.ID)
		}
		return w.Flush()
	})
}

func runInspectDecision(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		rec, err := st.GetDecision(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		attempts, err := st.RepairAttempts(cmd.Context(), rec.ID)
		if err != nil {
			return err
		}
		var decision orchestrator.Decision
		if err := json.Unmarshal([]byte(rec.Payload), &decision); err != nil {
			return fmt.Errorf("decode decision payload: %w", err)
		}
		return printJSON(map[string]interface{}{"decision": decision, "repair_attempts": attempts})
	})
}

// #endregion decisions

// #region versions

type versionRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Origin    string `json:"origin"`
	Hash      string `json:"hash"`
	Bytes     int    `json:"bytes"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func runInspectVersions(cmd *cobra.Command, _ []string) error {
	if err := requireItemRole(inspectFlags.item, inspectFlags.role); err != nil {
		return err
	}
	role := content.Role(inspectFlags.role)
	return withStore(func(st *store.Store) error {
		versions, err := st.ListVersions(cmd.Context(), inspectFlags.item, role, inspectFlags.last)
		if err != nil {
			return err
		}
		active, err := st.ActiveContent(cmd.Context(), inspectFlags.item, role)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		rows := make([]versionRow, len(versions))
		for i, v := range versions {
			rows[i] = versionRow{
				VersionID: v.VersionID, ParentID: v.ParentID, Origin: string(v.Origin),
				Hash: v.Hash, Bytes: len(v.HTML), Active: v.VersionID == active.VersionID,
				CreatedAt: v.CreatedAt.Format(time.RFC3339),
			}
		}
		if inspectFlags.jsonOut {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "no versions found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tORIGIN\tBYTES\tACTIVE\tVERSION\tPARENT\t")
		for _, r := range rows {
			mark := ""
			if r.Active {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t\n", r.CreatedAt, r.Origin, r.Bytes, mark, r.VersionID, r.ParentID)
		}
		return w.Flush()
	})
}

// #endregion versions
