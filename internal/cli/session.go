package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Drive a session one interaction at a time",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Decay the graph and start a new session",
		Run:   runSessionStart,
	}
	toggle := &cobra.Command{
		Use:   "toggle <session-id> <cell>",
		Short: "Advance one cell and evolve",
		Args:  cobra.ExactArgs(2),
		Run:   runSessionToggle,
	}
	advance := &cobra.Command{
		Use:   "advance <session-id>",
		Short: "Descend one depth and evolve",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionAdvance,
	}
	reset := &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Complete a session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionReset,
	}
	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionShow,
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Run:   runSessionList,
	}
	list.Flags().IntP("limit", "l", 20, "Max results")

	sessionCmd.AddCommand(start, toggle, advance, reset, show, list)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	snap, err := a.orch.Start(cmd.Context())
	if err != nil {
		exitErr("start session", err)
	}
	printJSON(snap)
}

func runSessionToggle(cmd *cobra.Command, args []string) {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		exitErr("toggle", fmt.Errorf("invalid cell %q", args[1]))
	}

	a := newApp(cmd)
	defer a.close()

	snap, err := a.orch.ToggleCell(cmd.Context(), args[0], index)
	if err != nil {
		exitErr("toggle", err)
	}
	printJSON(snap)
}

func runSessionAdvance(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	snap, err := a.orch.AdvanceDepth(cmd.Context(), args[0])
	if err != nil {
		exitErr("advance", err)
	}
	printJSON(snap)
}

func runSessionReset(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	snap, err := a.orch.Reset(cmd.Context(), args[0])
	if err != nil {
		exitErr("reset", err)
	}
	printJSON(snap)
}

func runSessionShow(cmd *cobra.Command, args []string) {
	a := newApp(cmd)
	defer a.close()

	snap, err := a.orch.Snapshot(cmd.Context(), args[0])
	if err != nil {
		exitErr("show", err)
	}
	printJSON(snap)
}

func runSessionList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a := newApp(cmd)
	defer a.close()

	sessions, err := a.store.ListSessions(cmd.Context(), limit)
	if err != nil {
		exitErr("list sessions", err)
	}
	printJSON(sessions)
}
