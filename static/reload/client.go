package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
)

const (
	TypeReload = "reload"

	// EventsPath is the websocket endpoint of the message server.
	EventsPath = "/events"
)

// Message is the payload sent over the message socket.
type Message struct {
	Type string `json:"type"`
}

// PortResponse is the body of the dev server's message-port endpoint.
type PortResponse struct {
	Port int `json:"port"`
}

// Client listens to the dev server's message socket and broadcasts reloads
// to a Bus.
type Client struct {
	// MessagePortURL is the dev server endpoint reporting the message port.
	MessagePortURL string
	Bus            *Bus              // Default: Default()
	HTTPClient     *http.Client      // Default: http.DefaultClient
	Dialer         *websocket.Dialer // Default: websocket.DefaultDialer
	Logger         *slog.Logger
}

func (c *Client) bus() *Bus {
	if c.Bus == nil {
		return Default()
	}
	return c.Bus
}

func (c *Client) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// EventsURL asks the dev server for the message port and returns the
// websocket URL to dial.
func (c *Client) EventsURL(ctx context.Context) (string, error) {
	u, err := url.Parse(c.MessagePortURL)
	if err != nil {
		return "", fmt.Errorf("reload: parse message port url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("reload: query message port: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reload: query message port: %s", resp.Status)
	}
	var pr PortResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("reload: decode message port: %w", err)
	}
	if pr.Port <= 0 {
		return "", fmt.Errorf("reload: invalid message port %d", pr.Port)
	}
	ws := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(u.Hostname(), strconv.Itoa(pr.Port)),
		Path:   EventsPath,
	}
	return ws.String(), nil
}

// Run connects to the message socket and broadcasts every reload message
// until the connection closes or ctx ends. A context end returns nil.
func (c *Client) Run(ctx context.Context) error {
	target, err := c.EventsURL(ctx)
	if err != nil {
		return err
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("reload: dial %s: %w", target, err)
	}
	c.log().Info("Connected to message server", "url", target)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.log().Warn("Ignoring malformed message", "error", err)
				continue
			}
			return fmt.Errorf("reload: read: %w", err)
		}
		switch msg.Type {
		case TypeReload:
			c.log().Debug("Reload message received")
			c.bus().Broadcast()
		default:
			c.log().Debug("Ignoring message", "type", msg.Type)
		}
	}
}
