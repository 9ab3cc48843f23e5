package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Evolve a pattern one step",
		Long:  "Evolve a pattern one step. The result depends only on the inputs.",
		Run:   runEvolve,
	}

	cmd.Flags().StringP("pattern", "p", "", "Comma-separated cells (required)")
	cmd.Flags().Int("depth", 0, "Current depth")
	cmd.Flags().StringP("recent", "r", "", "Comma-separated recent history, flattened")
	cmd.Flags().Float64("decay", 1.0, "Decay factor in [0,1]")
	cmd.Flags().BoolP("branch", "b", false, "Enable branching")

	cmd.MarkFlagRequired("pattern")

	RootCmd.AddCommand(cmd)
}

func runEvolve(cmd *cobra.Command, args []string) {
	patternStr, _ := cmd.Flags().GetString("pattern")
	recentStr, _ := cmd.Flags().GetString("recent")
	depth, _ := cmd.Flags().GetInt("depth")
	decay, _ := cmd.Flags().GetFloat64("decay")
	branch, _ := cmd.Flags().GetBool("branch")

	cfg := loadConfig(cmd)
	eng := evolve.New(cfg.EngineOptions())

	p, err := parsePattern(patternStr)
	if err != nil {
		exitErr("parse pattern", err)
	}
	if err := model.ValidatePattern(p, 0, eng.Options().Symbols); err != nil {
		exitErr("evolve", err)
	}
	if err := evolve.ValidateDepth(depth); err != nil {
		exitErr("evolve", err)
	}
	recent, err := parsePattern(recentStr)
	if err != nil {
		exitErr("parse recent", err)
	}

	printJSON(eng.Evolve(evolve.Request{
		Pattern:         p,
		Depth:           depth,
		RecentPatterns:  recent,
		DecayFactor:     decay,
		EnableBranching: branch,
	}))
}
