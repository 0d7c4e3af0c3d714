package rpcclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeNode is a minimal substrate node serving the JSON-RPC methods used by
// the client.
type fakeNode struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	storage      map[string]string
	properties   map[string]interface{}
	subscribers  map[string][]*nodeSub
	nextSub      int
	unsubscribed []string
	submitted    []string
	peers        []*peer
	// submit returns the statuses sent for a submitted extrinsic, or an
	// error rejecting it.
	submit func(extrinsic string) ([]interface{}, *rpcError)
}

type peer struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (p *peer) send(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.WriteJSON(v)
}

type nodeSub struct {
	id   string
	peer *peer
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{
		t:           t,
		storage:     make(map[string]string),
		properties:  map[string]interface{}{"ss58Format": 2},
		subscribers: make(map[string][]*nodeSub),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := &peer{ws: ws}
		n.mu.Lock()
		n.peers = append(n.peers, p)
		n.mu.Unlock()
		n.serve(p)
	}))
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// dropConnections closes all client connections.
func (n *fakeNode) dropConnections() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		_ = p.ws.Close()
	}
}

func (n *fakeNode) serve(p *peer) {
	defer p.ws.Close()
	for {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := p.ws.ReadJSON(&req); err != nil {
			return
		}
		n.handle(p, req.ID, req.Method, req.Params)
	}
}

func (n *fakeNode) reply(p *peer, id uint64, result interface{}) {
	p.send(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func (n *fakeNode) fail(p *peer, id uint64, e *rpcError) {
	p.send(map[string]interface{}{"jsonrpc": "2.0", "id": id, "error": e})
}

func (n *fakeNode) notify(p *peer, method, sub string, result interface{}) {
	p.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  map[string]interface{}{"subscription": sub, "result": result},
	})
}

func (n *fakeNode) handle(p *peer, id uint64, method string, params []json.RawMessage) {
	switch method {
	case "system_properties":
		n.mu.Lock()
		props := n.properties
		n.mu.Unlock()
		n.reply(p, id, props)
	case "state_getStorage":
		var key string
		_ = json.Unmarshal(params[0], &key)
		n.mu.Lock()
		value, ok := n.storage[key]
		n.mu.Unlock()
		if !ok {
			n.reply(p, id, nil)
			return
		}
		n.reply(p, id, value)
	case "state_subscribeStorage":
		var keys []string
		_ = json.Unmarshal(params[0], &keys)
		n.mu.Lock()
		n.nextSub++
		sub := &nodeSub{id: "sub" + string(rune('a'+n.nextSub)), peer: p}
		for _, k := range keys {
			n.subscribers[k] = append(n.subscribers[k], sub)
		}
		n.mu.Unlock()
		n.reply(p, id, sub.id)
		for _, k := range keys {
			n.notify(p, "state_storage", sub.id, n.changeSet(k))
		}
	case "state_unsubscribeStorage", "author_unwatchExtrinsic":
		var sub string
		_ = json.Unmarshal(params[0], &sub)
		n.mu.Lock()
		n.unsubscribed = append(n.unsubscribed, sub)
		for k, subs := range n.subscribers {
			kept := subs[:0]
			for _, s := range subs {
				if s.id != sub {
					kept = append(kept, s)
				}
			}
			n.subscribers[k] = kept
		}
		n.mu.Unlock()
		n.reply(p, id, true)
	case "author_submitAndWatchExtrinsic":
		var xt string
		_ = json.Unmarshal(params[0], &xt)
		n.mu.Lock()
		n.submitted = append(n.submitted, xt)
		submit := n.submit
		n.mu.Unlock()
		statuses, rerr := submit(xt)
		if rerr != nil {
			n.fail(p, id, rerr)
			return
		}
		n.reply(p, id, 7)
		for _, s := range statuses {
			n.notify(p, "author_extrinsicUpdate", "7", s)
		}
	default:
		n.fail(p, id, &rpcError{Code: -32601, Message: "Method not found"})
	}
}

func (n *fakeNode) changeSet(key string) map[string]interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	var value interface{}
	if v, ok := n.storage[key]; ok {
		value = v
	}
	return map[string]interface{}{
		"block":   "0x01",
		"changes": [][]interface{}{{key, value}},
	}
}

// setStorage updates a storage entry and notifies subscribers. An empty
// value removes the entry.
func (n *fakeNode) setStorage(key, value string) {
	n.mu.Lock()
	if value == "" {
		delete(n.storage, key)
	} else {
		n.storage[key] = value
	}
	subs := append([]*nodeSub(nil), n.subscribers[key]...)
	n.mu.Unlock()
	for _, s := range subs {
		n.notify(s.peer, "state_storage", s.id, n.changeSet(key))
	}
}

func (n *fakeNode) unsubscribedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.unsubscribed...)
}

func (n *fakeNode) setProperties(props map[string]interface{}) {
	n.mu.Lock()
	n.properties = props
	n.mu.Unlock()
}

func (n *fakeNode) setSubmit(fn func(extrinsic string) ([]interface{}, *rpcError)) {
	n.mu.Lock()
	n.submit = fn
	n.mu.Unlock()
}

func (n *fakeNode) submittedExtrinsics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.submitted...)
}
