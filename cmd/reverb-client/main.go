// Command reverb-client is a headless demo client for the arena server: it
// connects, keeps a replicated World in sync, and reads movement commands
// (z/s/q/d, or "shoot") from stdin to drive its own Player via
// compute_server. It does not print the spawns, diffs or despawns it
// receives. There is no rendering, only enough to prove the wire protocol
// end to end.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lelabodugame/reverb/examples/arena"
	"github.com/lelabodugame/reverb/internal/rlog"
	"github.com/lelabodugame/reverb/pkg/reverb"
	"github.com/lelabodugame/reverb/pkg/transport"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "reverb-client",
	Short: "Connect to a reverb arena server and drive a Player from stdin",
	RunE:  runClient,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "server address to dial")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reverb-client:", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	log := rlog.Client()

	cli := transport.NewClient(log)
	if err := cli.Dial(addr); err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer cli.Close()

	types := reverb.NewTypeRegistry()
	arena.RegisterTypes(types)
	world := reverb.NewClientWorld(types, cli, log)

	localPort := cli.LocalPort()
	var myUID string

	printOwnUID := func() {
		for _, e := range world.ByType(arena.TypeNamePlayer) {
			if e.Base().OwnerTag() == localPort {
				myUID = e.Base().UID()
			}
		}
	}

	fmt.Println("connected. commands: z/s/q/d to move, shoot to fire, quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !cli.Connected() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}

		printOwnUID()
		if myUID == "" {
			fmt.Println("no local player yet, try again shortly")
			continue
		}
		e, err := world.GetEntity(myUID)
		if err != nil {
			fmt.Println("local player vanished:", err)
			continue
		}
		p, ok := e.(*arena.Player)
		if !ok {
			continue
		}

		switch line {
		case "shoot":
			if err := p.ComputeServer("spawn_bullet"); err != nil {
				fmt.Println("spawn_bullet:", err)
			}
		default:
			if err := p.ComputeServer("check_walk", line); err != nil {
				fmt.Println("check_walk:", err)
			}
		}
	}

	return nil
}
