// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"beatsync/internal/beat"
	applog "beatsync/internal/log"

	"github.com/gorilla/websocket"
)

// BeatPath is the endpoint clients connect to for the frame stream.
const BeatPath = "/beat"

const writeTimeout = time.Second

// WebSocketTransport broadcasts frames as binary messages to all connected
// clients. Send only queues the frame; a single goroutine encodes and writes,
// so a slow client never stalls the audio callback. Frames without a beat are
// thinned to at most one per minInterval; beat frames always go out.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan beat.Frame
	dropped   atomic.Uint64

	minInterval time.Duration
	lastSend    time.Time // only touched by Send

	listener net.Listener
	server   *http.Server
	done     chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewWebSocketTransport listens on addr and starts serving. Binding happens
// before it returns, so an address in use is reported here. A zero
// minInterval forwards every frame.
func NewWebSocketTransport(addr string, queue int, minInterval time.Duration) (*WebSocketTransport, error) {
	if queue <= 0 {
		queue = 256
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // visual clients are served from anywhere
			},
		},
		clients:     make(map[*websocket.Conn]struct{}),
		broadcast:   make(chan beat.Frame, queue),
		minInterval: minInterval,
		listener:    ln,
		done:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(BeatPath, wst.handleWebSocket)
	wst.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: Serving ws://%s%s", ln.Addr(), BeatPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go func() {
		defer wst.wg.Done()
		wst.handleBroadcasts()
	}()

	return wst, nil
}

// Addr is the bound listen address.
func (wst *WebSocketTransport) Addr() net.Addr { return wst.listener.Addr() }

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client %s connected, total: %d", conn.RemoteAddr(), n)

	// Clients only listen. Reading surfaces the close frame or a dead peer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	n := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		conn.Close()
		applog.Infof("WebSocketTransport: Client %s disconnected, total: %d", conn.RemoteAddr(), n)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	buf := make([]byte, 0, FrameSize)
	for {
		select {
		case f := <-wst.broadcast:
			buf = AppendFrame(buf[:0], f)
			wst.writeAll(buf)
		case <-wst.done:
			return
		}
	}
}

func (wst *WebSocketTransport) writeAll(msg []byte) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	for client := range wst.clients {
		client.SetWriteDeadline(deadline)
		if err := client.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			applog.Warnf("WebSocketTransport: Error sending to %s: %v", client.RemoteAddr(), err)
			client.Close()
			delete(wst.clients, client)
		}
	}
}

// Send queues f for broadcast. When the queue is full the frame is dropped;
// the Beats counter lets clients notice missed beats. Send must be called
// from a single goroutine.
func (wst *WebSocketTransport) Send(f beat.Frame) error {
	if wst.closed.Load() {
		return ErrClosed
	}
	if wst.minInterval > 0 && !f.BeatFired {
		now := time.Now()
		if now.Sub(wst.lastSend) < wst.minInterval {
			return nil
		}
		wst.lastSend = now
	}
	select {
	case wst.broadcast <- f:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close stops the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	if !wst.closed.CompareAndSwap(false, true) {
		return nil
	}
	applog.Infof("WebSocketTransport: Closing server (%d frames dropped)", wst.dropped.Load())

	close(wst.done)
	err := wst.server.Close()

	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	clear(wst.clients)
	wst.clientsMu.Unlock()

	wst.wg.Wait()
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
