// Command ccndc is a small control-plane client for ccndd: it sends
// newface (add-face) and prefixreg (register) requests as management
// Interests and prints the response (SPEC_FULL.md s4.7 addendum,
// grounded on teacher's tools/nfdc command layout).
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccnhub/ccnd/internal/cliclient"
	"github.com/ccnhub/ccnd/internal/wire"
)

var socketPath string

const requestTimeout = 3 * time.Second

var cmdRoot = &cobra.Command{
	Use:   "ccndc",
	Short: "ccndd face/prefix control client",
}

var cmdAddFace = &cobra.Command{
	Use:   "add-face <transport> <address> <port>",
	Short: "Create a new face (transport: udp, tcp, or mcast)",
	Args:  cobra.ExactArgs(3),
	Run:   runAddFace,
}

var cmdRegister = &cobra.Command{
	Use:   "register <prefix> <faceid>",
	Short: "Register a prefix toward an existing face",
	Args:  cobra.ExactArgs(2),
	Run:   runRegister,
}

func init() {
	cmdRoot.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/.ccnd.sock", "path to ccndd's local control socket")
	cmdRoot.AddCommand(cmdAddFace, cmdRegister)
}

func dial() *cliclient.Conn {
	conn, err := cliclient.Dial(socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return conn
}

func runAddFace(cmd *cobra.Command, args []string) {
	transport, address, portStr := args[0], args[1], args[2]
	if _, err := strconv.Atoi(portStr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", portStr, err)
		os.Exit(2)
	}

	name := wire.NameFromString("/ccnx/local/newface")
	name = append(name,
		wire.NewGenericComponent("transport="+transport),
		wire.NewGenericComponent("address="+address),
		wire.NewGenericComponent("port="+portStr),
	)
	sendAndPrint(name)
}

func runRegister(cmd *cobra.Command, args []string) {
	prefix, faceidStr := args[0], args[1]
	if _, err := strconv.ParseUint(faceidStr, 10, 64); err != nil {
		fmt.Fprintf(os.Stderr, "invalid faceid %q: %v\n", faceidStr, err)
		os.Exit(2)
	}

	name := wire.NameFromString("/ccnx/local/prefixreg")
	name = append(name,
		wire.NewGenericComponent("prefix="+prefix),
		wire.NewGenericComponent("faceid="+faceidStr),
	)
	sendAndPrint(name)
}

func sendAndPrint(name wire.Name) {
	conn := dial()
	defer conn.Close()

	it := &wire.Interest{Name: name, Nonce: wire.NewNonce()}
	co, err := conn.Request(it, requestTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(co.Content))
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
