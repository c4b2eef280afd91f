package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/logging"
)

// WSPushChannel reads server frames from the push endpoint and fans them out
// to the handlers registered with On.
type WSPushChannel struct {
	conn *websocket.Conn

	mu       sync.RWMutex
	handlers map[string]map[uint64]func([]byte)
	next     uint64

	closeOnce sync.Once
	done      chan struct{}
}

var _ PushChannel = (*WSPushChannel)(nil)

// DialPush opens the push channel at wsURL (e.g. "ws://localhost:5000/ws"),
// passing the token as a bearer subprotocol.
func DialPush(ctx context.Context, wsURL, token string) (*WSPushChannel, error) {
	dialer := websocket.Dialer{
		Proxy:        http.ProxyFromEnvironment,
		Subprotocols: []string{identity.BearerProtocol, token},
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial push channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	p := &WSPushChannel{
		conn:     conn,
		handlers: make(map[string]map[uint64]func([]byte)),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// On registers fn for frames of type event.
func (p *WSPushChannel) On(event string, fn func(data []byte)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	if p.handlers[event] == nil {
		p.handlers[event] = make(map[uint64]func([]byte))
	}
	p.handlers[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.handlers[event], id)
		})
	}
}

// Done is closed when the connection ends.
func (p *WSPushChannel) Done() <-chan struct{} { return p.done }

// Close ends the connection.
func (p *WSPushChannel) Close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = p.conn.Close()
	})
	return err
}

func (p *WSPushChannel) readLoop() {
	defer close(p.done)
	for {
		_, b, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).Msg("chatclient: push channel closed")
			}
			return
		}
		var f struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(b, &f); err != nil {
			logging.Debug().Err(err).Msg("chatclient: bad frame")
			continue
		}

		p.mu.RLock()
		fns := make([]func([]byte), 0, len(p.handlers[f.Type]))
		for _, fn := range p.handlers[f.Type] {
			fns = append(fns, fn)
		}
		p.mu.RUnlock()

		for _, fn := range fns {
			fn(f.Data)
		}
	}
}
