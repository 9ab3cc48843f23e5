package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/pattern-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import an export from a file or stdin",
		Long:  "Import nodes, sessions and achievements. Expects the format produced by export. Existing signatures and earned achievements are kept.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open file", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		exitErr("read input", err)
	}

	var e store.Export
	if err := json.Unmarshal(data, &e); err != nil {
		exitErr("parse json", err)
	}

	cfg := loadConfig(cmd)
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Import(cmd.Context(), &e)
	if err != nil {
		exitErr("import", err)
	}

	printJSON(struct {
		OK bool `json:"ok"`
		*store.ImportResult
	}{true, res})
}
