// Command reverbd hosts the authoritative server side of the arena demo: it
// accepts connections, spawns a Player for each one, ticks replication at a
// fixed rate, and despawns a client's Player when it disconnects. It exists
// to exercise the protocol end to end, not to implement a real game.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/lelabodugame/reverb/examples/arena"
	"github.com/lelabodugame/reverb/internal/rlog"
	"github.com/lelabodugame/reverb/pkg/reverb"
	"github.com/lelabodugame/reverb/pkg/transport"
)

var (
	addr     string
	tickRate time.Duration
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "reverbd",
	Short: "Run the reverb arena demo server",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	rootCmd.Flags().DurationVar(&tickRate, "tick", time.Second/60, "replication tick interval")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reverbd:", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if verbose {
		rlog.SetLevel(zapcore.DebugLevel)
	}
	log := rlog.Server()

	srv := transport.NewServer(log)
	if err := srv.Listen(addr); err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer srv.Stop()
	log.Infof("listening on %s", srv.Addr())

	types := reverb.NewTypeRegistry()
	arena.RegisterTypes(types)
	world := reverb.NewServerWorld(types, srv, log)

	srv.Events.On(transport.EventClientConnection, func(sock net.Conn, contents []json.RawMessage) {
		p := arena.NewPlayer(arena.Vec2{X: 400, Y: 400}, arena.RandomColor(), peerTag(sock))
		p.Spawn = world.AddServer
		if _, err := world.AddServer(p); err != nil {
			log.Warnf("spawning player for %v: %v", sock.RemoteAddr(), err)
		}
	})

	srv.Events.On(transport.EventClientDisconnection, func(sock net.Conn, contents []json.RawMessage) {
		tag := peerTag(sock)
		for _, e := range world.ByType(arena.TypeNamePlayer) {
			if e.Base().OwnerTag() == tag {
				_ = world.Remove(e.Base().UID())
			}
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			return nil
		case <-ticker.C:
			if err := world.Tick(); err != nil {
				log.Warnf("tick: %v", err)
			}
		}
	}
}

// peerTag derives the owner tag for a connection the same way the client
// side computes its own: the connection's TCP port.
func peerTag(conn net.Conn) int {
	if a, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}
