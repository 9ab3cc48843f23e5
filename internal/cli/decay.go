package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Apply time decay to every memory node",
		Run:   runDecay,
	}

	RootCmd.AddCommand(cmd)
}

func runDecay(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	updated, err := a.graph.DecayAllNodes(cmd.Context())
	if err != nil {
		exitErr("decay", err)
	}
	printJSON(map[string]int{"updated": updated})
}
