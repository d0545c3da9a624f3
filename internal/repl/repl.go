// Package repl reads operator commands from standard input, one per line,
// and drives the node with them. Commands only mutate state and emit
// messages; nothing here ever replies on the wire.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mvolf/hashswarm/internal/node"
	"github.com/mvolf/hashswarm/pkg/netutil"
)

// REPL dispatches operator commands to a node.
type REPL struct {
	log  *slog.Logger
	node *node.Node
	out  io.Writer
	exit func(code int)
}

type Options struct {
	Log  *slog.Logger
	Node *node.Node

	// Out receives command output; defaults to stdout.
	Out io.Writer

	// Exit terminates the process on `die`; defaults to os.Exit.
	Exit func(code int)
}

func New(opts Options) *REPL {
	r := &REPL{
		log:  opts.Log.With("src", "repl"),
		node: opts.Node,
		out:  opts.Out,
		exit: opts.Exit,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.exit == nil {
		r.exit = os.Exit
	}
	return r
}

// Run consumes input line by line until EOF. Blank lines are skipped;
// unknown commands are reported on the output and otherwise ignored.
func (r *REPL) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.Dispatch(strings.Fields(line))
	}
}

// Dispatch executes one tokenized command.
func (r *REPL) Dispatch(tokens []string) {
	switch tokens[0] {
	case "die":
		fmt.Fprintln(r.out, "Node is shutting down.")
		r.exit(0)
	case "info":
		fmt.Fprintln(r.out, r.node.Info())
	case "ping":
		r.ping(tokens)
	case "cal":
		if err := r.node.Recruit(); err != nil {
			fmt.Fprintln(r.out, err)
		}
	case "comm":
		fmt.Fprintf(r.out, "Node communicating set to: %t\n", r.node.ToggleCommunicating())
	case "solve":
		r.solve(tokens)
	case "stop":
		if err := r.node.Stop(); err != nil {
			fmt.Fprintln(r.out, err)
		}
	default:
		fmt.Fprintf(r.out, "Unknown command: %s\n", tokens[0])
	}
}

func (r *REPL) ping(tokens []string) {
	if len(tokens) < 2 {
		fmt.Fprintln(r.out, "Usage: ping <address>")
		return
	}

	address := netutil.ParseAddress(tokens[1])
	fmt.Fprintf(r.out, "Sending PING to %s\n", address)

	if err := r.node.PingFriend(address); err != nil {
		fmt.Fprintf(r.out, "Unable to ping %s: %v\n", address, err)
		return
	}
	fmt.Fprintf(r.out, "Received ACK from %s\n", address)
}

func (r *REPL) solve(tokens []string) {
	if len(tokens) < 5 {
		fmt.Fprintln(r.out, "Usage: solve <alphabet> <min_len> <max_len> <target_hash>")
		fmt.Fprintln(r.out, "Example: solve abc 2 3 ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb")
		return
	}

	minLen, err := strconv.Atoi(tokens[2])
	if err != nil {
		fmt.Fprintf(r.out, "Invalid min_len: %s\n", tokens[2])
		return
	}
	maxLen, err := strconv.Atoi(tokens[3])
	if err != nil {
		fmt.Fprintf(r.out, "Invalid max_len: %s\n", tokens[3])
		return
	}

	if err := r.node.Solve(tokens[1], minLen, maxLen, tokens[4]); err != nil {
		fmt.Fprintln(r.out, err)
	}
}
