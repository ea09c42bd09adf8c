package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ak125/contentgate/internal/orchestrator"
	"github.com/ak125/contentgate/internal/replay"
)

var replayFlags struct {
	jsonOut bool
}

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>...",
	Short: "Replay recorded jobs against the current gates",
	Long: `Run every job of each fixture through the full engine on an in-memory
store and compare the decisions with the expected ones. Exits non-zero when a
decision differs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFlags.jsonOut, "json", false, "output as JSON instead of table")
}

type replayRow struct {
	Fixture  string  `json:"fixture"`
	Index    int     `json:"index"`
	ItemID   string  `json:"item_id"`
	Role     string  `json:"role"`
	Status   string  `json:"status"`
	Reason   string  `json:"reason"`
	Expected string  `json:"expected,omitempty"`
	Score    float64 `json:"quality_score"`
	Match    bool    `json:"match"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var rows []replayRow
	var all []replay.Result
	for _, path := range args {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		results, err := replay.Replay(cmd.Context(), f, replay.Options{Config: &cfg, Log: log.Named("replay")})
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		all = append(all, results...)
		for _, r := range results {
			row := replayRow{
				Fixture: path, Index: r.Index, ItemID: r.ItemID, Role: string(r.Role),
				Status: string(r.Decision.Status), Reason: string(r.Decision.Reason),
				Score: r.Decision.QualityScore, Match: r.Matches(),
			}
			if r.Expected.ExpectedStatus != "" || r.Expected.ExpectedReason != "" {
				row.Expected = fmt.Sprintf("%s/%s", r.Expected.ExpectedStatus, r.Expected.ExpectedReason)
			}
			rows = append(rows, row)
		}
	}
	summary := replay.Summarize(all)

	if replayFlags.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]interface{}{"results": rows, "summary": summary}); err != nil {
			return err
		}
	} else {
		printReplay(rows, summary)
	}

	if summary.Mismatches > 0 {
		return fmt.Errorf("%d of %d decisions differ from the fixtures", summary.Mismatches, summary.Total)
	}
	return nil
}

func printReplay(rows []replayRow, s replay.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tITEM\tROLE\tSTATUS\tREASON\tSCORE\tEXPECTED\t")
	for _, r := range rows {
		mark := ""
		if !r.Match {
			mark = "  <-- MISMATCH"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.1f\t%s%s\t\n", r.Index, r.ItemID, r.Role, r.Status, r.Reason, r.Score, r.Expected, mark)
	}
	w.Flush()

	fmt.Printf("\n%d jobs, %d mismatches\n", s.Total, s.Mismatches)
	statuses := make([]string, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Printf("  %-15s %d\n", st, s.ByStatus[orchestrator.Status(st)])
	}
}
