package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/powermux/infra/logger"
	"github.com/kilianp07/powermux/pkg/export"
	"github.com/kilianp07/powermux/qa/scenarios"
)

var scenarioOpts struct {
	format string
	grid   bool
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file.yaml>",
	Short: "Replay a scenario offline and print the resulting allocation",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenario,
}

func init() {
	scenarioCmd.Flags().StringVarP(&scenarioOpts.format, "format", "f", "json", "output format: json, csv or html")
	scenarioCmd.Flags().BoolVar(&scenarioOpts.grid, "grid", false, "print the module grid before the rows")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := scenarios.Load(args[0])
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	res, err := scenarios.Run(sc, logger.New("scenario"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if scenarioOpts.grid {
		if _, err := fmt.Fprint(out, res.Grid); err != nil {
			return err
		}
	}
	switch scenarioOpts.format {
	case "json":
		err = export.WriteJSON(out, res.Snapshot)
	case "csv":
		err = export.WriteCSV(out, res.Snapshot)
	case "html":
		err = export.WriteHTML(out, res.Snapshot)
	default:
		return fmt.Errorf("unknown format %q", scenarioOpts.format)
	}
	if err != nil {
		return err
	}
	if msgs := scenarios.Check(sc, res); len(msgs) > 0 {
		for _, m := range msgs {
			fmt.Fprintln(cmd.ErrOrStderr(), m)
		}
		return fmt.Errorf("scenario %s: %d expectation(s) not met", sc.Name, len(msgs))
	}
	return nil
}
