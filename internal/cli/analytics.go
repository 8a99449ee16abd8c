package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lazypower/tether/internal/alerts"
	"github.com/lazypower/tether/internal/drift"
	"github.com/lazypower/tether/internal/model"
	"github.com/spf13/cobra"
)

var (
	checkTypes     []string
	jsonOutput     bool
	neglectedDays  int
	relationsLimit int
)

var checkCmd = &cobra.Command{
	Use:   "check <user>",
	Short: "Run an accountability check and print the alerts it raised",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		types := make([]model.AlertType, 0, len(checkTypes))
		for _, t := range checkTypes {
			types = append(types, model.AlertType(t))
		}
		res, err := a.engine.Alerts.RunCheck(cmd.Context(), args[0], types...)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printCheck(cmd.OutOrStdout(), res)
		return nil
	},
}

var driftCmd = &cobra.Command{
	Use:   "drift <user>",
	Short: "Show the real-time alignment score and drift alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		rt, err := a.engine.Drift.RealTime(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rt)
		}
		printDrift(cmd.OutOrStdout(), rt)
		return nil
	},
}

var relationshipsCmd = &cobra.Command{
	Use:   "relationships <user>",
	Short: "List relationships by health, or the neglected ones with --neglected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		var list []model.RelationshipMetrics
		if neglectedDays > 0 {
			list, err = a.engine.Metrics.NeglectedRelationships(cmd.Context(), args[0], neglectedDays)
		} else {
			list, err = a.engine.Metrics.TopRelationships(cmd.Context(), args[0], relationsLimit)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		printRelationships(cmd.OutOrStdout(), list)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkTypes, "type", "t", nil, "Limit to alert types (value_contradiction, goal_drift, pattern_detected, neglected_area)")
	relationshipsCmd.Flags().IntVarP(&relationsLimit, "limit", "n", 10, "Maximum number of relationships")
	relationshipsCmd.Flags().IntVar(&neglectedDays, "neglected", 0, "Only people not seen for this many days")

	for _, c := range []*cobra.Command{checkCmd, driftCmd, relationshipsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCheck(w io.Writer, res *alerts.CheckResult) {
	if res.Capped {
		fmt.Fprintf(w, "Daily alert limit reached (%d today).\n", len(res.Alerts))
	} else {
		fmt.Fprintf(w, "%d candidates, %d below threshold, %d duplicates, %d created.\n",
			res.Candidates, res.Filtered, res.Duplicates, res.Created)
	}
	for _, t := range res.Failed {
		fmt.Fprintf(w, "warning: %s detector failed\n", t)
	}
	for _, a := range res.Alerts {
		fmt.Fprintf(w, "\n[%s] %s\n", strings.ToUpper(string(a.Severity)), a.Title)
		if a.Description != "" {
			fmt.Fprintf(w, "  %s\n", a.Description)
		}
		for _, s := range a.SuggestedActions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

func printDrift(w io.Writer, rt *drift.RealTime) {
	fmt.Fprintf(w, "Alignment %.0f (%s, %s vs baseline %.0f)\n",
		rt.CurrentAlignment, rt.Status, rt.TrendDirection, rt.Baseline)
	fmt.Fprintf(w, "  values %.0f  goals %.0f  behavior %.0f\n",
		rt.Scores.Value, rt.Scores.Goal, rt.Scores.Behavior)
	if len(rt.Alerts) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, a := range rt.Alerts {
		fmt.Fprintf(w, "[%s] %s: %s\n", a.Severity, a.Type, a.Description)
	}
}

func printRelationships(w io.Writer, list []model.RelationshipMetrics) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No relationships found.")
		return
	}
	for i, m := range list {
		fmt.Fprintf(w, "%d. %-20s health %.2f  %d interactions  last %s  %s\n",
			i+1, m.Person, m.HealthScore, m.InteractionCount,
			m.LastInteraction.Format("2006-01-02"), m.TrendDirection)
	}
}
