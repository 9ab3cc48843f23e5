package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Show entropy and clusters of a pattern",
		Run:   runAnalyze,
	}

	cmd.Flags().StringP("pattern", "p", "", "Comma-separated cells (required)")
	cmd.MarkFlagRequired("pattern")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	patternStr, _ := cmd.Flags().GetString("pattern")

	eng := evolve.New(loadConfig(cmd).EngineOptions())
	p, err := parsePattern(patternStr)
	if err != nil {
		exitErr("parse pattern", err)
	}
	if err := model.ValidatePattern(p, 0, eng.Options().Symbols); err != nil {
		exitErr("analyze", err)
	}

	printJSON(eng.Analyze(p))
}
