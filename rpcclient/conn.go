package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/iov-one/msigproxy/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// JSON-RPC error codes returned by substrate nodes when the transaction pool
// rejects an extrinsic.
const (
	codeInvalidTransaction = 1010
	codeUnknownTransaction = 1011
	codePoolError          = 1012
)

// subscriptionCapacity is the number of notifications buffered per
// subscription before the reader waits for the consumer.
const subscriptionCapacity = 16

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type message struct {
	ID     *uint64             `json:"id"`
	Result json.RawMessage     `json:"result"`
	Error  *rpcError           `json:"error"`
	Method string              `json:"method"`
	Params *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) asError() error {
	desc := e.Message
	if len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null")) {
		desc += ": " + strings.Trim(string(e.Data), `"`)
	}
	switch e.Code {
	case codeInvalidTransaction, codeUnknownTransaction, codePoolError:
		return errors.Wrap(errors.ErrInvalidTx, desc)
	}
	return errors.Wrapf(errors.ErrNetwork, "rpc error %d: %s", e.Code, desc)
}

type pending struct {
	resp chan *message
	// sub is set for subscription requests. The reader registers it as
	// soon as the response arrives, so that no notification is missed.
	sub *Subscription
}

// Conn is a JSON-RPC connection to a substrate node over websocket.
type Conn struct {
	ws     *websocket.Conn
	logger log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]*pending
	subs     map[string]*Subscription
	closeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a connection to given websocket endpoint.
func Dial(ctx context.Context, url string, logger log.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "dial %s: %s", url, err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	c := &Conn{
		ws:      ws,
		logger:  logger.With("endpoint", url),
		pending: make(map[uint64]*pending),
		subs:    make(map[string]*Subscription),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection is closed or lost.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the reason the connection was closed, if it was.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close terminates the connection.
func (c *Conn) Close() error {
	c.shutdown(errors.Wrap(errors.ErrConnectionLost, "closed"))
	return nil
}

func (c *Conn) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = reason
		c.mu.Unlock()
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Call sends a request and decodes its result into result, unless result
// is nil.
func (c *Conn) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	resp, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrapf(errors.ErrNetwork, "decode %s result: %s", method, err)
	}
	return nil
}

// Subscribe opens a subscription using method. Notifications are
// delivered until Unsubscribe is called with unsubscribeMethod or the
// connection is lost.
func (c *Conn) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*Subscription, error) {
	sub := &Subscription{
		conn:        c,
		unsubscribe: unsubscribeMethod,
		ch:          make(chan json.RawMessage, subscriptionCapacity),
		done:        make(chan struct{}),
	}
	if _, err := c.roundTrip(ctx, method, params, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *Conn) roundTrip(ctx context.Context, method string, params []interface{}, sub *Subscription) (*message, error) {
	if params == nil {
		params = []interface{}{}
	}
	p := &pending{resp: make(chan *message, 1), sub: sub}

	c.mu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = p
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		c.shutdown(errors.Wrapf(errors.ErrConnectionLost, "write: %s", err))
		return nil, errors.Wrapf(errors.ErrConnectionLost, "%s: %s", method, err)
	}

	select {
	case resp := <-p.resp:
		if resp.Error != nil {
			return nil, errors.Wrap(resp.Error.asError(), method)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, errors.Wrapf(errors.ErrTimeout, "%s: %s", method, ctx.Err())
	case <-c.closed:
		return nil, errors.Wrap(c.Err(), method)
	}
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(errors.Wrapf(errors.ErrConnectionLost, "read: %s", err))
			return
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Error("malformed message", "err", err)
			continue
		}
		switch {
		case m.ID != nil:
			c.handleResponse(&m)
		case m.Params != nil:
			c.handleNotification(&m)
		}
	}
}

func (c *Conn) handleResponse(m *message) {
	c.mu.Lock()
	p, ok := c.pending[*m.ID]
	delete(c.pending, *m.ID)
	if ok && p.sub != nil && m.Error == nil {
		p.sub.id = subscriptionKey(m.Result)
		p.sub.rawID = m.Result
		c.subs[p.sub.id] = p.sub
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("response without request", "id", *m.ID)
		return
	}
	p.resp <- m
}

func (c *Conn) handleNotification(m *message) {
	key := subscriptionKey(m.Params.Subscription)
	c.mu.Lock()
	sub, ok := c.subs[key]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("notification without subscription", "method", m.Method, "subscription", key)
		return
	}
	select {
	case sub.ch <- m.Params.Result:
	case <-sub.done:
	case <-c.closed:
	}
}

// subscriptionKey normalizes a subscription ID, that can be either a JSON
// string or a number.
func subscriptionKey(raw json.RawMessage) string {
	return strings.Trim(string(bytes.TrimSpace(raw)), `"`)
}

// Subscription is a stream of notifications.
type Subscription struct {
	conn        *Conn
	unsubscribe string
	id          string
	rawID       json.RawMessage
	ch          chan json.RawMessage
	done        chan struct{}
	once        sync.Once
}

// Notifications returns the channel notification results are written to.
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.ch
}

// Done is closed when the subscription was cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Lost is closed when the underlying connection is gone.
func (s *Subscription) Lost() <-chan struct{} {
	return s.conn.closed
}

// Unsubscribe cancels the subscription. Unsubscribing more than once is a
// no-op.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.mu.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mu.Unlock()
		if s.unsubscribe == "" {
			return
		}
		select {
		case <-s.conn.closed:
			return
		default:
		}
		err = s.conn.Call(ctx, nil, s.unsubscribe, s.rawID)
	})
	return err
}
