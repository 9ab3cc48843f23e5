package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/model"
)

func init() {
	achCmd := &cobra.Command{
		Use:     "achievements",
		Aliases: []string{"ach"},
		Short:   "Check, list and reveal milestones",
	}

	check := &cobra.Command{
		Use:   "check <session-id>",
		Short: "Evaluate the rule table against a session",
		Args:  cobra.ExactArgs(1),
		Run:   runAchievementsCheck,
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List earned achievements",
		Run:   runAchievementsList,
	}
	list.Flags().StringP("session", "s", "", "Only this session")
	rules := &cobra.Command{
		Use:   "rules",
		Short: "List every achievement rule",
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(achievement.Rules())
		},
	}
	reveal := &cobra.Command{
		Use:   "reveal <achievement-id>",
		Short: "Mark an achievement as shown",
		Args:  cobra.ExactArgs(1),
		Run:   runAchievementsReveal,
	}

	achCmd.AddCommand(check, list, rules, reveal)
	RootCmd.AddCommand(achCmd)
}

func runAchievementsCheck(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	codes, err := a.evaluator.Check(cmd.Context(), args[0])
	if err != nil {
		exitErr("check achievements", err)
	}
	printJSON(map[string][]string{"codes": codes})
}

func runAchievementsList(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")

	a := newApp(cmd)
	defer a.close()

	list, err := a.store.ListAchievements(cmd.Context(), session)
	if err != nil {
		exitErr("list achievements", err)
	}
	if list == nil {
		list = []model.Achievement{}
	}
	printJSON(list)
}

func runAchievementsReveal(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	got, err := a.store.RevealAchievement(cmd.Context(), args[0])
	if err != nil {
		exitErr("reveal", err)
	}
	printJSON(got)
}
