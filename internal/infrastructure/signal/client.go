package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"rtctester/internal/core/domain"
	apperrors "rtctester/pkg/errors"
	"rtctester/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config controls the signaling socket.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Retry          retry.Config
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		Retry:          retry.DefaultConfig(),
	}
}

// Client is one viewer's signaling socket. RequestOffer must be called before
// StartReadPump; after that the socket is only read by the pump.
type Client struct {
	conn   *websocket.Conn
	cfg    Config
	logger *zap.SugaredLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	pumpDone  chan struct{}
	pumpOnce  sync.Once
}

// Dial opens the socket, retrying per cfg.Retry. http and https endpoints are
// dialed as ws and wss.
func Dial(ctx context.Context, endpoint string, cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	target, err := websocketURL(endpoint)
	if err != nil {
		return nil, apperrors.NewConnectionError(endpoint, err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.ConnectTimeout,
	}
	conn, err := retry.Do(ctx, cfg.Retry, func(attempt int) (*websocket.Conn, error) {
		if attempt > 0 {
			logger.Debugw("retrying signaling connection", "endpoint", endpoint, "attempt", attempt)
		}
		conn, resp, err := dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil && ctx.Err() != nil {
			return nil, retry.Permanent(err)
		}
		return conn, err
	})
	if err != nil {
		return nil, apperrors.NewConnectionError(endpoint, err)
	}

	return &Client{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		closed:   make(chan struct{}),
		pumpDone: make(chan struct{}),
	}, nil
}

func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// RequestOffer asks the endpoint for an offer and waits for the next frame.
func (c *Client) RequestOffer(ctx context.Context) (domain.Offer, error) {
	if c.isClosed() {
		return domain.Offer{}, apperrors.NewNotConnectedError()
	}
	if err := c.write(Message{Command: CommandRequestOffer}); err != nil {
		return domain.Offer{}, apperrors.NewNoOfferError(err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if c.isClosed() {
			return domain.Offer{}, apperrors.NewNotConnectedError()
		}
		return domain.Offer{}, apperrors.NewNoOfferError(err)
	}
	return ParseOffer(data)
}

// SendAnswer delivers the local answer.
func (c *Client) SendAnswer(ctx context.Context, a domain.Answer) error {
	if c.isClosed() {
		return apperrors.NewNotConnectedError()
	}
	if err := c.write(AnswerMessage(a)); err != nil {
		return apperrors.NewNegotiationError(err, "send answer")
	}
	return nil
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// StartReadPump keeps reading so control frames are answered, until the socket
// closes. onClose, if set, runs once when the remote side goes away.
func (c *Client) StartReadPump(onClose func(error)) {
	c.pumpOnce.Do(func() {
		go func() {
			defer close(c.pumpDone)
			for {
				if _, _, err := c.conn.ReadMessage(); err != nil {
					if c.isClosed() {
						return
					}
					if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						c.logger.Debugw("signaling socket closed", "error", err)
					}
					if onClose != nil {
						onClose(err)
					}
					return
				}
			}
		}()
	})
}

// Done is closed when the read pump exits.
func (c *Client) Done() <-chan struct{} {
	return c.pumpDone
}

// Close sends a close frame without waiting for the reply and drops the
// connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
