package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/graph"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "List memories ranked by weight and recency",
		Run:   runRecall,
	}

	cmd.Flags().StringP("session", "s", "", "Only nodes created in this session")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	a := newApp(cmd)
	defer a.close()

	res, err := a.graph.Recall(cmd.Context(), graph.RecallParams{SessionID: session, Limit: limit})
	if err != nil {
		exitErr("recall", err)
	}
	printJSON(res)
}
