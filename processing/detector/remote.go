// Package detector talks to the object-detection model server. The model runs
// out of process; this client ships a frame over a websocket and reads back
// the detections for it.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"recyclescan/internal/models"
)

// ErrNotReady reports that the model server is not connected. Polls treat this
// as a no-op; the client keeps redialing in the background.
var ErrNotReady = errors.New("detector: model server not connected")

const (
	dialRetryDelay   = 2 * time.Second
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 10 * time.Second
)

// RemoteClient is a websocket client for the detection model server. One
// request is in flight at a time; a failed exchange drops the connection and
// triggers a background redial.
type RemoteClient struct {
	serverURL string
	log       *logrus.Logger

	mu   sync.Mutex // serializes Detect exchanges and guards conn
	conn *websocket.Conn

	redialChan chan struct{}
	stopChan   chan struct{}
	stopOnce   sync.Once
}

func NewRemoteClient(host string, log *logrus.Logger) *RemoteClient {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteClient{
		serverURL:  u.String(),
		log:        log,
		redialChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start begins connecting to the model server in the background.
func (c *RemoteClient) Start() {
	go c.connectLoop()
}

func (c *RemoteClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
}

// Ready reports whether the model server is currently connected.
func (c *RemoteClient) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *RemoteClient) connectLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.log.WithField("url", c.serverURL).Info("connecting to model server")

		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.Dial(c.serverURL, nil)
		if err != nil {
			c.log.WithError(err).Warnf("model server dial failed, retrying in %s", dialRetryDelay)
			select {
			case <-time.After(dialRetryDelay):
				continue
			case <-c.stopChan:
				return
			}
		}

		c.log.Info("connected to model server")

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		select {
		case <-c.redialChan:
		case <-c.stopChan:
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}
	}
}

// dropConn discards a broken connection and wakes the connect loop.
// Caller must hold c.mu.
func (c *RemoteClient) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	select {
	case c.redialChan <- struct{}{}:
	default:
	}
}

// Detect submits one frame and returns the detections the model found in it.
// Returns ErrNotReady when the model server is not connected.
func (c *RemoteClient) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, nil); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotReady
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := c.conn

	conn.SetWriteDeadline(deadline(ctx, writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		c.dropConn()
		return nil, fmt.Errorf("send frame: %w", err)
	}

	conn.SetReadDeadline(deadline(ctx, readTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropConn()
		return nil, fmt.Errorf("read detections: %w", err)
	}

	conn.SetWriteDeadline(time.Time{})
	conn.SetReadDeadline(time.Time{})

	var detections []models.Detection
	if err := json.Unmarshal(message, &detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	return detections, nil
}

func deadline(ctx context.Context, fallback time.Duration) time.Time {
	d := time.Now().Add(fallback)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
