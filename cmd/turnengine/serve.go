package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
	"github.com/riftlab/turnengine/internal/transport"
)

var serveAddr string

// serveCmd exposes the orchestrator's UI event stream to a socket-based
// front end: one websocket connection per session, carrying a yamux
// session with two logical streams (events out, user input in).
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over a websocket for a socket-based front end",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7777", "address to listen on")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleServeConn(r.Context(), w, r)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Printf("turnengine serve listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func handleServeConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("serve: upgrade: %v", err)
		return
	}
	conn := transport.NewWebSocketConn(wsConn)

	session, err := yamux.Server(conn, nil)
	if err != nil {
		log.Printf("serve: yamux server: %v", err)
		wsConn.Close()
		return
	}
	defer session.Close()

	eventsStream, err := session.AcceptStream()
	if err != nil {
		log.Printf("serve: accept events stream: %v", err)
		return
	}
	inputStream, err := session.AcceptStream()
	if err != nil {
		log.Printf("serve: accept input stream: %v", err)
		return
	}

	eng, err := newEngine()
	if err != nil {
		log.Printf("serve: engine: %v", err)
		return
	}

	meta := rollout.SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  time.Now(),
		Cwd:        eng.cwd,
		Originator: "turnengine-serve",
		CLIVersion: version,
		Source:     "Serve",
		Model:      eng.settings.Model,
	}
	recorder, err := rollout.NewRecorder(meta)
	if err != nil {
		log.Printf("serve: rollout recorder: %v", err)
		return
	}
	defer recorder.Shutdown()

	enc := json.NewEncoder(eventsStream)
	var encMu sync.Mutex
	cfg := eng.sessionConfig(recorder, func(e orchestrator.Event) {
		encMu.Lock()
		defer encMu.Unlock()
		if err := enc.Encode(e); err != nil {
			log.Printf("serve: encode event: %v", err)
		}
	}, "")
	sess := orchestrator.NewSession(cfg)

	scanner := bufio.NewScanner(inputStream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := sess.SubmitUserMessage(ctx, line); err != nil {
			log.Printf("serve: turn error: %v", err)
		}
	}
}
