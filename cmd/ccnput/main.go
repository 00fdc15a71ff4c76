// Command ccnput publishes a single Content Object to a running ccndd,
// reading the payload from stdin (SPEC_FULL.md s4.7 addendum, grounded
// on original_source csrc/cmd/ccnput.c).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccnhub/ccnd/internal/cliclient"
	"github.com/ccnhub/ccnd/internal/wire"
)

var (
	socketPath string
	freshness  int64
)

var cmdRoot = &cobra.Command{
	Use:   "ccnput <name>",
	Short: "Publish stdin as a Content Object under name",
	Args:  cobra.ExactArgs(1),
	Run:   run,
}

func init() {
	cmdRoot.Flags().StringVar(&socketPath, "socket", "/tmp/.ccnd.sock", "path to ccndd's local control socket")
	cmdRoot.Flags().Int64Var(&freshness, "freshness", -1, "FreshnessSeconds, -1 for unbounded")
}

func run(cmd *cobra.Command, args []string) {
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ccnput: reading stdin:", err)
		os.Exit(1)
	}

	co := &wire.ContentObject{
		Name:             wire.NameFromString(args[0]),
		FreshnessSeconds: freshness,
		Content:          content,
	}

	conn, err := cliclient.Dial(socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.SendContentObject(co); err != nil {
		fmt.Fprintln(os.Stderr, "ccnput: send failed:", err)
		os.Exit(1)
	}
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
