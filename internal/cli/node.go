package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/store"
)

func init() {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Read and write memory nodes",
	}

	put := &cobra.Command{
		Use:   "put",
		Short: "Remember a pattern (merges with an existing node of the same signature)",
		Run:   runNodePut,
	}
	put.Flags().StringP("pattern", "p", "", "Comma-separated cells (required)")
	put.Flags().Int("depth", 0, "Depth the pattern was reached at")
	put.Flags().StringP("session", "s", "cli", "Session id")
	put.MarkFlagRequired("pattern")

	get := &cobra.Command{
		Use:   "get [id]",
		Short: "Show a node by id or by pattern",
		Args:  cobra.MaximumNArgs(1),
		Run:   runNodeGet,
	}
	get.Flags().StringP("pattern", "p", "", "Look up by pattern instead of id")
	get.Flags().Bool("links", false, "Include links in both directions")

	nodeCmd.AddCommand(put, get)
	RootCmd.AddCommand(nodeCmd)
}

func runNodePut(cmd *cobra.Command, args []string) {
	patternStr, _ := cmd.Flags().GetString("pattern")
	depth, _ := cmd.Flags().GetInt("depth")
	session, _ := cmd.Flags().GetString("session")

	a := newApp(cmd)
	defer a.close()

	p, err := parsePattern(patternStr)
	if err != nil {
		exitErr("parse pattern", err)
	}
	if err := model.ValidatePattern(p, 0, a.engine.Options().Symbols); err != nil {
		exitErr("node put", err)
	}

	out, err := a.graph.Record(cmd.Context(), p, depth, session)
	if err != nil {
		exitErr("node put", err)
	}
	printJSON(out)
}

func runNodeGet(cmd *cobra.Command, args []string) {
	patternStr, _ := cmd.Flags().GetString("pattern")
	withLinks, _ := cmd.Flags().GetBool("links")

	a := newApp(cmd)
	defer a.close()

	var n *model.MemoryNode
	var err error
	switch {
	case len(args) == 1:
		n, err = a.store.GetNode(cmd.Context(), args[0])
	case patternStr != "":
		p, perr := parsePattern(patternStr)
		if perr != nil {
			exitErr("parse pattern", perr)
		}
		n, err = a.store.FindNodeBySignature(cmd.Context(), graph.Signature(p))
	default:
		exitErr("node get", fmt.Errorf("an id argument or --pattern is required"))
	}
	if err != nil {
		exitErr("node get", err)
	}

	if !withLinks {
		printJSON(n)
		return
	}
	links, err := a.store.GetLinks(cmd.Context(), n.ID)
	if err != nil {
		exitErr("get links", err)
	}
	if links == nil {
		links = []store.Link{}
	}
	printJSON(struct {
		*model.MemoryNode
		Links []store.Link `json:"links"`
	}{n, links})
}
