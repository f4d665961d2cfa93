package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures a log stream connection.
type WSConfig struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	// SubscribeTimeout bounds the wait for the subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns the default connection settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// LogNotification is one logsNotification for a transaction.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	Err       any
}

// LogFeed delivers program log notifications until its transport fails.
type LogFeed interface {
	Notifications() <-chan LogNotification
	// Err yields the transport error that ended the feed.
	Err() <-chan error
	Close() error
}

// LogStream is a single logsSubscribe subscription over one connection. It
// does not reconnect; the listener owns reconnects.
type LogStream struct {
	conn    *websocket.Conn
	cfg     WSConfig
	subID   int64
	writeMu sync.Mutex

	notifications chan LogNotification
	errc          chan error
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// DialLogs connects to endpoint and subscribes to logs mentioning any of
// mentions at confirmed commitment.
func DialLogs(ctx context.Context, endpoint string, mentions []string, cfg WSConfig) (*LogStream, error) {
	def := DefaultWSConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &LogStream{
		conn:          conn,
		cfg:           cfg,
		notifications: make(chan LogNotification, 1024),
		errc:          make(chan error, 1),
		done:          make(chan struct{}),
	}
	if err := s.subscribe(ctx, mentions); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

func (s *LogStream) subscribe(ctx context.Context, mentions []string) error {
	filter := map[string]interface{}{"mentions": mentions}
	if len(mentions) == 0 {
		filter = map[string]interface{}{"all": nil}
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			filter,
			map[string]string{"commitment": "confirmed"},
		},
	}
	if err := s.write(func() error { return s.conn.WriteJSON(req) }); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(s.cfg.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read subscribe response: %w", err)
		}
		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil || resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("logsSubscribe: %d %s", resp.Error.Code, resp.Error.Message)
		}
		var subID int64
		if err := json.Unmarshal(resp.Result, &subID); err != nil {
			return fmt.Errorf("parse subscription id: %w", err)
		}
		s.subID = subID
		return nil
	}
}

// Notifications returns the notification channel. It is closed when the stream ends.
func (s *LogStream) Notifications() <-chan LogNotification {
	return s.notifications
}

func (s *LogStream) Err() <-chan error {
	return s.errc
}

// Close unsubscribes and closes the connection.
func (s *LogStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.write(func() error {
			return s.conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 2, Method: "logsUnsubscribe", Params: []interface{}{s.subID}})
		})
		_ = s.write(func() error {
			return s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		})
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *LogStream) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *LogStream) write(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return fn()
}

func (s *LogStream) readLoop() {
	defer s.wg.Done()
	defer close(s.notifications)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.fail(fmt.Errorf("websocket read: %w", err))
			}
			return
		}

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
			continue
		}
		if notif.Params.Subscription != s.subID {
			continue
		}
		value := notif.Params.Result.Value
		n := LogNotification{Signature: value.Signature, Logs: value.Logs, Err: value.Err}
		if notif.Params.Result.Context != nil {
			n.Slot = notif.Params.Result.Context.Slot
		}
		select {
		case s.notifications <- n:
		case <-s.done:
			return
		}
	}
}

func (s *LogStream) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.write(func() error { return s.conn.WriteMessage(websocket.PingMessage, nil) })
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.fail(fmt.Errorf("websocket ping: %w", err))
				return
			}
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
	Err       any      `json:"err"`
}
