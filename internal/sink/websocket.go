package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/driver-guard/internal/domain/alert"
	"github.com/oshokin/driver-guard/internal/domain/detection"
	"github.com/oshokin/driver-guard/internal/logger"
)

const (
	// FeedPath is the HTTP path of the live feed.
	FeedPath = "/alerts"
	// feedWriteTimeout drops clients that do not read.
	feedWriteTimeout = 2 * time.Second
	// feedShutdownTimeout bounds the HTTP server shutdown.
	feedShutdownTimeout = 3 * time.Second
)

// Feed message types.
const (
	messageHello = "hello"
	messageFrame = "frame"
	messageAlert = "alert"
)

// feedMessage is one JSON message of the live feed.
type feedMessage struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id,omitempty"`
	Frame      *int            `json:"frame,omitempty"`
	Detections []feedDetection `json:"detections,omitempty"`
	Latched    []string        `json:"latched,omitempty"`
	Alert      *alertMessage   `json:"alert,omitempty"`
}

// feedDetection is a detection as sent to browsers.
type feedDetection struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Box        detection.Box `json:"box"`
}

// feedClient is one connected browser.
type feedClient struct {
	conn     *websocket.Conn
	writeMux sync.Mutex
}

// WebSocket broadcasts per-frame detections and alerts to connected clients.
type WebSocket struct {
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	done     chan struct{}

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewWebSocket starts serving the live feed on listen.
func NewWebSocket(ctx context.Context, listen string) (*WebSocket, error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listen, err)
	}

	ws := &WebSocket{
		listener: lis,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done:    make(chan struct{}),
		clients: make(map[*feedClient]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(FeedPath, ws.serveFeed)

	ws.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: feedWriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		defer close(ws.done)

		if serveErr := ws.server.Serve(lis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.ErrorKV(ctx, "Live feed stopped", "error", serveErr)
		}
	}()

	logger.InfoKV(ctx, "Live feed listening", "address", lis.Addr().String(), "path", FeedPath)

	return ws, nil
}

// Addr returns the address the feed listens on.
func (ws *WebSocket) Addr() string {
	return ws.listener.Addr().String()
}

// Clients returns the number of connected clients.
func (ws *WebSocket) Clients() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return len(ws.clients)
}

// serveFeed upgrades the request and keeps the client until it disconnects.
func (ws *WebSocket) serveFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(r.Context(), "Live feed upgrade failed", "error", err)

		return
	}

	client := &feedClient{conn: conn}

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	if err = ws.send(client, feedMessage{Type: messageHello}); err != nil {
		ws.drop(client)

		return
	}

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err = conn.NextReader(); err != nil {
			ws.drop(client)

			return
		}
	}
}

// Present broadcasts the frame detections and the alerts raised on it.
func (ws *WebSocket) Present(_ context.Context, r *Result) error {
	if r == nil || r.Frame == nil {
		return nil
	}

	index := r.Frame.Index

	frame := feedMessage{
		Type:       messageFrame,
		Frame:      &index,
		Detections: make([]feedDetection, 0, len(r.Detections)),
		Latched:    r.State.Latched(),
	}

	if r.State != nil {
		frame.SessionID = r.State.SessionID
	}

	for _, d := range r.Detections {
		frame.Detections = append(frame.Detections, feedDetection{
			Label:      d.Label(),
			Confidence: d.Confidence(),
			Box:        d.Box(),
		})
	}

	ws.broadcast(frame)

	for _, a := range r.Alerts {
		ws.broadcast(alertFeedMessage(a))
	}

	return nil
}

func alertFeedMessage(a alert.Alert) feedMessage {
	index := a.FrameIndex

	return feedMessage{
		Type:      messageAlert,
		SessionID: a.SessionID,
		Frame:     &index,
		Alert: &alertMessage{
			Alert:            a,
			TimestampSeconds: a.Timestamp.Seconds(),
		},
	}
}

// broadcast sends msg to every client and drops the ones that fail.
func (ws *WebSocket) broadcast(msg feedMessage) {
	ws.mu.Lock()
	clients := make([]*feedClient, 0, len(ws.clients))
	for client := range ws.clients {
		clients = append(clients, client)
	}
	ws.mu.Unlock()

	for _, client := range clients {
		if err := ws.send(client, msg); err != nil {
			ws.drop(client)
		}
	}
}

func (ws *WebSocket) send(client *feedClient, msg feedMessage) error {
	client.writeMux.Lock()
	defer client.writeMux.Unlock()

	if err := client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout)); err != nil {
		return err
	}

	return client.conn.WriteJSON(msg)
}

func (ws *WebSocket) drop(client *feedClient) {
	ws.mu.Lock()
	_, ok := ws.clients[client]
	delete(ws.clients, client)
	ws.mu.Unlock()

	if ok {
		_ = client.conn.Close()
	}
}

// Close disconnects every client and stops the server.
func (ws *WebSocket) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), feedShutdownTimeout)
	defer cancel()

	ws.mu.Lock()
	clients := ws.clients
	ws.clients = make(map[*feedClient]struct{})
	ws.mu.Unlock()

	for client := range clients {
		client.writeMux.Lock()
		_ = client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
			time.Now().Add(feedWriteTimeout),
		)
		client.writeMux.Unlock()

		_ = client.conn.Close()
	}

	err := ws.server.Shutdown(ctx)
	<-ws.done

	if err != nil {
		return writeError("websocket", err)
	}

	return nil
}
