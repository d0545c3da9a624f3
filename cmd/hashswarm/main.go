package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/node"
	"github.com/mvolf/hashswarm/internal/problem"
	"github.com/mvolf/hashswarm/internal/repl"
	"github.com/mvolf/hashswarm/pkg/logging"
	"github.com/mvolf/hashswarm/pkg/netutil"
	"github.com/spf13/cobra"
)

var (
	flagPort    uint16
	flagFriends []string
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hashswarm",
	Short: "Peer-to-peer distributed SHA-256 preimage search",
	Long: `hashswarm runs one peer of a distributed brute-force search swarm.
Peers elect a leader on command, the leader partitions a preimage search
across the swarm weighted by measured compute power, and a replicated
snapshot lets a backup child take over when the leader dies.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromFile(flagConfig)
		if err != nil {
			return fmt.Errorf("read config file %s: %w", flagConfig, err)
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = flagPort
		}
		if cmd.Flags().Changed("friends") {
			cfg.Friends = flagFriends
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = flagVerbose
		}
		config.Swap(cfg)

		setupLogger(cfg.Verbose)
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().Uint16Var(&flagPort, "port", 9000, "local listen port")
	rootCmd.Flags().StringSliceVar(&flagFriends, "friends", nil,
		"initial friends, host:port or bare port (repeatable)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "YAML config file path")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func run(cfg config.Config) error {
	address := netutil.ParseAddress(strconv.Itoa(int(cfg.Port)))

	friends := make([]string, 0, len(cfg.Friends))
	for _, f := range cfg.Friends {
		friends = append(friends, netutil.ParseAddress(f))
	}

	slog.Info("measuring node power", "duration", cfg.BenchmarkDuration)
	power := problem.MeasurePower(cfg.BenchmarkDuration)
	slog.Info("benchmark finished", "power_khps", power)

	n := node.New(node.Options{
		Log:      slog.Default(),
		Address:  address,
		Friends:  friends,
		Power:    power,
		Searcher: problem.NewBruteForcer(slog.Default()),
	})

	fmt.Println(n.Info())

	r := repl.New(repl.Options{Log: slog.Default(), Node: n})
	go r.Run(os.Stdin)

	// Blocks for the lifetime of the process; only a bind failure at
	// startup makes it return.
	return n.Listen()
}

func setupLogger(verbose bool) {
	opts := logging.DefaultOptions()
	if verbose {
		opts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(logging.NewHandler(os.Stdout, &opts)))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
