package devserver

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/vormadev/rstatic/static/reload"
)

type clientManager struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan reload.Message
	count      chan chan int
	done       chan struct{}
}

type client struct {
	id     string
	conn   *websocket.Conn
	notify chan reload.Message
}

func newClientManager() *clientManager {
	return &clientManager{
		clients:    make(map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan reload.Message),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// start runs the manager loop until ctx is cancelled, then drains pending
// registrations so handlers never block.
func (m *clientManager) start(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for c := range m.clients {
				close(c.notify)
				c.conn.Close()
			}
			m.drainChannels()
			return

		case c := <-m.register:
			m.clients[c] = true

		case c := <-m.unregister:
			if _, ok := m.clients[c]; ok {
				delete(m.clients, c)
				close(c.notify)
				c.conn.Close()
			}

		case msg := <-m.broadcast:
			for c := range m.clients {
				select {
				case c.notify <- msg:
				default:
					// client is still writing the previous message
				}
			}

		case reply := <-m.count:
			reply <- len(m.clients)
		}
	}
}

func (m *clientManager) drainChannels() {
	for {
		select {
		case c := <-m.register:
			c.conn.Close()
		case c := <-m.unregister:
			c.conn.Close()
		case <-m.broadcast:
		default:
			return
		}
	}
}

// wait blocks until the manager loop has closed every client.
func (m *clientManager) wait() {
	<-m.done
}

// send broadcasts msg unless ctx ends first.
func (m *clientManager) send(ctx context.Context, msg reload.Message) {
	select {
	case m.broadcast <- msg:
	case <-ctx.Done():
	case <-m.done:
	}
}

// clients reports the number of connected clients.
func (m *clientManager) clientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case m.count <- reply:
	case <-ctx.Done():
		return 0
	case <-m.done:
		return 0
	}
	return <-reply
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func websocketHandler(ctx context.Context, manager *clientManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := &client{
			id:     r.RemoteAddr,
			conn:   conn,
			notify: make(chan reload.Message, 1),
		}

		select {
		case manager.register <- c:
		case <-ctx.Done():
			conn.Close()
			return
		}

		unregister := func() {
			select {
			case manager.unregister <- c:
			case <-ctx.Done():
			case <-manager.done:
			}
		}
		defer unregister()

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					unregister()
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-c.notify:
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
