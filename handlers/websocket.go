package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Command types accepted from websocket clients.
const (
	CommandSend   = "send"
	CommandToggle = "toggle"
	CommandClear  = "clear"
)

// Frame types pushed to websocket clients.
const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
	FrameError    = "error"
)

// Command is one request read from a websocket client.
type Command struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Index int    `json:"index,omitempty"`
}

// Frame is one message written to a websocket client.
type Frame struct {
	Type         string            `json:"type"`
	Event        *models.Event     `json:"event,omitempty"`
	Conversation *conversationView `json:"conversation,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type Client struct {
	Conn        *websocket.Conn
	Session     *session.Session
	Limiter     *rate.Limiter
	ClientID    string
	MessageChan chan *Frame   // Frames waiting to be written
	DoneChan    chan struct{} // Closed when the reader exits
	log         *zap.Logger
}

func NewClient(conn *websocket.Conn, s *session.Session, limiter *rate.Limiter, log *zap.Logger) *Client {
	id := "ws_" + uuid.NewString()[:8]
	return &Client{
		Conn:        conn,
		Session:     s,
		Limiter:     limiter,
		ClientID:    id,
		MessageChan: make(chan *Frame, 256), // Buffered channel
		DoneChan:    make(chan struct{}),
		log:         log.With(zap.String("client", id), zap.String("conversation", s.Store().ID())),
	}
}

// push queues f for the writer. It gives up when the client is gone or the
// queue stays full.
func (c *Client) push(f *Frame) {
	select {
	case c.MessageChan <- f:
	case <-time.After(1 * time.Second):
		c.log.Warn("timeout queueing frame", zap.String("type", f.Type))
	case <-c.DoneChan:
	}
}

// offer queues f without waiting. It is used from store observers, which
// run while the session is locked; a full queue drops the frame.
func (c *Client) offer(f *Frame) bool {
	select {
	case c.MessageChan <- f:
		return true
	default:
		c.log.Warn("client queue full, dropping frame", zap.String("type", f.Type))
		return false
	}
}

func (c *Client) pushError(err error) {
	c.push(&Frame{Type: FrameError, Error: err.Error()})
}

// HandleRead reads commands from the websocket and applies them to the
// session. Answers reach the client as store events.
func (c *Client) HandleRead() {
	defer func() {
		c.log.Debug("reader closed")
		close(c.DoneChan) // Signal writer to stop
	}()
	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		var cmd Command
		err := c.Conn.ReadJSON(&cmd)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			} else {
				c.log.Debug("websocket closed", zap.Error(err))
			}
			break
		}

		switch cmd.Type {
		case CommandSend:
			if c.Limiter != nil && !c.Limiter.Allow() {
				c.pushError(errRateLimited)
				continue
			}
			// answered in the background so toggle and clear stay responsive
			go c.ask(cmd.Text)
		case CommandToggle:
			c.Session.ToggleSources(cmd.Index)
		case CommandClear:
			c.Session.Clear()
		default:
			c.pushError(errors.New("unknown command type: " + cmd.Type))
		}
	}
}

var errRateLimited = errors.New("too many questions, slow down")

func (c *Client) ask(text string) {
	if _, err := c.Session.Ask(text); err != nil {
		if errors.Is(err, session.ErrDiscarded) {
			return
		}
		c.pushError(err)
	}
}

// HandleWrite writes queued frames to the websocket and keeps it alive with pings.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.log.Debug("writer closed")
	}()

	for {
		select {
		case frame := <-c.MessageChan:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteJSON(frame); err != nil {
				c.log.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("websocket ping error", zap.Error(err))
				return
			}

		case <-c.DoneChan:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// HandleWebSocket manages the lifecycle of a conversation websocket: it sends
// a snapshot, then every later store event, until the client goes away.
func HandleWebSocket(c *websocket.Conn, registry *Registry, limiter *rate.Limiter, log *zap.Logger) {
	conversationID := c.Params("conversationID")
	if conversationID == "" {
		c.WriteJSON(Frame{Type: FrameError, Error: "missing conversationID"})
		c.Close()
		return
	}

	s := registry.Get(conversationID)
	client := NewClient(c, s, limiter, log)
	client.log.Info("client connected")

	snapshot := view(s)
	unsubscribe := s.Store().Watch(func(ev models.Event) {
		// runs on the goroutine that changed the store
		client.offer(&Frame{Type: FrameEvent, Event: &ev})
	}, func(msgs []models.Message) {
		snapshot.Messages = msgs
		client.offer(&Frame{Type: FrameSnapshot, Conversation: &snapshot})
	})

	defer func() {
		unsubscribe()
		c.Close()
		client.log.Info("client disconnected")
	}()

	go client.HandleWrite()

	// blocks until the connection closes
	client.HandleRead()
}
