// Command ccnget fetches one Content Object by name from a running
// ccndd and writes its payload to stdout (SPEC_FULL.md s4.7 addendum,
// grounded on original_source csrc/cmd/ccnget.c).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccnhub/ccnd/internal/cliclient"
	"github.com/ccnhub/ccnd/internal/wire"
)

var (
	socketPath  string
	mustBeFresh bool
	timeoutSec  int
)

var cmdRoot = &cobra.Command{
	Use:   "ccnget <name>",
	Short: "Fetch a Content Object by name and print its payload",
	Args:  cobra.ExactArgs(1),
	Run:   run,
}

func init() {
	cmdRoot.Flags().StringVar(&socketPath, "socket", "/tmp/.ccnd.sock", "path to ccndd's local control socket")
	cmdRoot.Flags().BoolVar(&mustBeFresh, "fresh", false, "require a non-stale Content Object")
	cmdRoot.Flags().IntVar(&timeoutSec, "timeout", 4, "seconds to wait for a response")
}

func run(cmd *cobra.Command, args []string) {
	it := &wire.Interest{
		Name:         wire.NameFromString(args[0]),
		Nonce:        wire.NewNonce(),
		MustBeFresh:  mustBeFresh,
		AnswerFromCS: true,
	}

	conn, err := cliclient.Dial(socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	co, err := conn.Request(it, time.Duration(timeoutSec)*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ccnget:", err)
		os.Exit(1)
	}
	os.Stdout.Write(co.Content)
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
