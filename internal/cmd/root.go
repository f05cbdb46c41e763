// Package cmd implements the CLI surface of §6.3: bind address and optional
// seed as positional arguments, cobra for argument parsing in the style the
// teacher pack uses for its own command-line tools (remote-procedure-call/cmd).
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcastellin/clustergossip/internal/gossip"
)

const usage = `A cluster-membership gossip node.

EXAMPLES:
  Start a reachable seed node:
    <program> 127.0.0.1:25688

  Start a non-reachable client joining through a seed:
    <program> -:25689 127.0.0.1:25688`

var rootCmd = &cobra.Command{
	Use:   "clustergossip <bind-ip-or-\"-\">:<port> [<seed-host:port>]",
	Short: "Run a cluster-membership gossip node",
	Long:  usage,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args)
	},
	SilenceUsage: true,
}

// Execute parses os.Args and runs the gossip node. Per §6.3, a clean
// shutdown (SIGINT/SIGQUIT) exits 0; an argument error exits non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// parseBindArg splits "<ip-or-\"-\">:<port>" into an advertise flag, ip and
// port, per §6.3's first positional argument.
func parseBindArg(arg string) (reachable bool, ip string, port int, err error) {
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return false, "", 0, fmt.Errorf("expected <ip-or-\"-\">:<port>, got %q", arg)
	}
	ipPart, portPart := arg[:idx], arg[idx+1:]
	port, err = strconv.Atoi(portPart)
	if err != nil {
		return false, "", 0, fmt.Errorf("invalid port in %q: %w", arg, err)
	}
	if ipPart == "-" {
		return false, "", port, nil
	}
	if net.ParseIP(ipPart) == nil {
		return false, "", 0, fmt.Errorf("invalid bind ip %q", ipPart)
	}
	return true, ipPart, port, nil
}

func run(args []string) error {
	reachable, ip, port, err := parseBindArg(args[0])
	if err != nil {
		return err
	}

	logger := zap.Must(zap.NewProduction())
	defer logger.Sync() //nolint:errcheck

	self := gossip.NewNodeRecord(uuid.NewString(), time.Now().Unix())
	if reachable {
		self.SetFull(ip, port)
	}

	seeds := gossip.NewSeedList()
	if len(args) == 2 {
		seeds.Add(args[1])
	}

	g := gossip.NewGossiper(self, seeds, logger)
	bindIP := ip
	if !reachable {
		bindIP = ""
	}
	if err := g.Serve(bindIP, port); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down", zap.String("pubid", self.PubID))
	return g.Shutdown()
}
