package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// newTopologyCmd builds "lorasim topology": a quick, no-simulation preview
// of the node addresses and link layout "lorasim run" would wire up for a
// given -n/-t combination, useful for sanity-checking a topology before
// spending a full run's duration on it.
func newTopologyCmd() *cobra.Command {
	var (
		nodeCount int
		topology  string
	)

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the node addresses and links a given topology would wire up",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodeCount < 2 {
				return fmt.Errorf("node count must be >= 2, got %d", nodeCount)
			}
			addrs := simAddresses(nodeCount)
			for i, a := range addrs {
				role := roleFor(i, nodeCount)
				fmt.Printf("%-10s role=%s\n", a.String(), role.String())
			}
			fmt.Println()
			for i, a := range addrs {
				for j, b := range addrs {
					if i >= j {
						continue
					}
					if linked(i, j, len(addrs), topology) {
						fmt.Printf("%s <-> %s\n", a.String(), b.String())
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&nodeCount, "nodes", "n", 6, "number of simulated nodes")
	cmd.Flags().StringVarP(&topology, "topology", "t", "chain", "topology: chain, star, or mesh")
	return cmd
}

func linked(i, j, n int, topology string) bool {
	switch topology {
	case "chain":
		return j == i+1
	case "star":
		return j == n-1 || i == n-1
	default: // mesh
		return true
	}
}

// topologyWatcher serves live route-table snapshots over a websocket, per
// SPEC_FULL's optional live-topology-viewer component. It is a minimal,
// unauthenticated, localhost-oriented debugging aid, not a production
// dashboard backend.
type topologyWatcher struct {
	log    *slog.Logger
	server *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

// nodeSnapshot is one node's route table rendered for the viewer.
type nodeSnapshot struct {
	Address string        `json:"address"`
	Routes  []routeRender `json:"routes"`
}

type routeRender struct {
	Destination string `json:"destination"`
	Via         string `json:"via"`
	Metric      uint8  `json:"metric"`
}

func newTopologyWatcher(addr string, log *slog.Logger) (*topologyWatcher, error) {
	w := &topologyWatcher{
		log:     log.With("component", "topology_watcher"),
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// The harness only ever binds to a loopback/LAN address for
			// manual bring-up sessions; any origin is accepted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleWS)
	w.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("topology watcher: %w", err)
	}
	go func() {
		if err := w.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			w.log.Error("websocket server stopped", "error", err)
		}
	}()
	w.log.Info("topology watcher listening", "addr", addr)
	return w, nil
}

func (w *topologyWatcher) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	w.mu.Lock()
	w.clients[conn] = struct{}{}
	w.mu.Unlock()

	// Drain and discard any client-sent frames so the connection's read
	// deadline machinery stays healthy; this endpoint is push-only.
	go func() {
		defer w.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (w *topologyWatcher) removeClient(conn *websocket.Conn) {
	w.mu.Lock()
	delete(w.clients, conn)
	w.mu.Unlock()
	conn.Close()
}

// pushLoop broadcasts a topology snapshot to every connected client once per
// second until ctx is cancelled.
func (w *topologyWatcher) pushLoop(ctx context.Context, nodes []*simNode) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.broadcast(snapshotAll(nodes))
		}
	}
}

func snapshotAll(nodes []*simNode) []nodeSnapshot {
	out := make([]nodeSnapshot, len(nodes))
	for i, n := range nodes {
		out[i] = nodeSnapshot{Address: n.addr.String()}
		for _, dst := range n.table.SnapshotNetworkNodes() {
			entry, ok := n.table.Find(dst.Address)
			if !ok {
				continue
			}
			out[i].Routes = append(out[i].Routes, routeRender{
				Destination: dst.Address.String(),
				Via:         entry.Via.String(),
				Metric:      entry.Metric,
			})
		}
	}
	return out
}

func (w *topologyWatcher) broadcast(snapshots []nodeSnapshot) {
	payload, err := json.Marshal(snapshots)
	if err != nil {
		return
	}

	w.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(w.clients))
	for c := range w.clients {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			w.removeClient(c)
		}
	}
}

// Close shuts down the websocket server and disconnects every client.
func (w *topologyWatcher) Close() error {
	w.mu.Lock()
	for c := range w.clients {
		c.Close()
	}
	w.clients = make(map[*websocket.Conn]struct{})
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return w.server.Shutdown(ctx)
}
