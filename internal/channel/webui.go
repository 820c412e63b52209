package channel

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/serenitybot/serenity/internal/bus"
	"github.com/serenitybot/serenity/internal/config"
)

//go:embed static
var staticFiles embed.FS

const webUIChannelName = "webui"

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Style   string `json:"style,omitempty"`
}

type wsClient struct {
	conn   *websocket.Conn
	id     string
	userID string
}

// Authenticator resolves the signed-in user of a websocket upgrade request.
type Authenticator func(r *http.Request) (userID string, ok bool)

// WebUIChannel serves the browser page and its chat websocket. It does not
// listen on its own; the gateway mounts Handler on the API server.
type WebUIChannel struct {
	BaseChannel
	clients sync.Map
	nextID  atomic.Int64
	auth    Authenticator
}

func NewWebUIChannel(cfg config.WebUIConfig, b *bus.MessageBus) (*WebUIChannel, error) {
	return &WebUIChannel{
		BaseChannel: NewBaseChannel(webUIChannelName, b, cfg.AllowFrom),
	}, nil
}

// SetAuthenticator enables per-user context for signed-in clients.
func (w *WebUIChannel) SetAuthenticator(a Authenticator) {
	w.auth = a
}

// Handler serves the static UI at / and the chat socket at /ws.
func (w *WebUIChannel) Handler() (http.Handler, error) {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("embed static fs: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", w.handleWS)
	return mux, nil
}

func (w *WebUIChannel) Start(ctx context.Context) error {
	log.Printf("[webui] ready")
	return nil
}

func (w *WebUIChannel) handleWS(wr http.ResponseWriter, r *http.Request) {
	var userID string
	if w.auth != nil {
		if id, ok := w.auth(r); ok {
			userID = id
		}
	}

	conn, err := websocket.Accept(wr, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webui] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("webui-%d", w.nextID.Add(1))
	if userID == "" {
		userID = webUIChannelName + ":" + clientID
	}
	w.clients.Store(clientID, &wsClient{conn: conn, id: clientID, userID: userID})
	log.Printf("[webui] client connected: %s", clientID)

	defer func() {
		w.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[webui] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}
		if !w.IsAllowed(clientID) {
			log.Printf("[webui] rejected message from %s", clientID)
			continue
		}

		var meta map[string]any
		if msg.Style != "" {
			meta = map[string]any{"style": msg.Style}
		}
		select {
		case w.bus.Inbound <- bus.InboundMessage{
			Channel:   webUIChannelName,
			SenderID:  clientID,
			ChatID:    clientID,
			Content:   msg.Content,
			Timestamp: time.Now(),
			UserID:    userID,
			Metadata:  meta,
		}:
		case <-r.Context().Done():
			return
		}
	}
}

func (w *WebUIChannel) write(c *wsClient, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Send delivers to the addressed client, or to every client when ChatID is unknown.
func (w *WebUIChannel) Send(msg bus.OutboundMessage) error {
	data, err := json.Marshal(wsMessage{Type: "message", Content: msg.Content})
	if err != nil {
		return err
	}

	if client, ok := w.clients.Load(msg.ChatID); ok {
		return w.write(client.(*wsClient), data)
	}
	w.clients.Range(func(key, value any) bool {
		_ = w.write(value.(*wsClient), data)
		return true
	})
	return nil
}

func (w *WebUIChannel) Stop() error {
	w.clients.Range(func(key, value any) bool {
		value.(*wsClient).conn.CloseNow()
		return true
	})
	log.Printf("[webui] stopped")
	return nil
}
