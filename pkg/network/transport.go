package network

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SendResult is the outcome a Conn reports for one Send, driving the
// sender-side backpressure state machine (spec.md §4.7, "Backpressure").
type SendResult int

const (
	SendOk SendResult = iota
	SendFull
	SendClosed
)

// Conn is the transport abstraction a channel sends frames over. The
// websocket implementation below is the only one in this engine, but the
// interface keeps the protocol state machine and backpressure logic
// testable against an in-memory fake.
type Conn interface {
	Send(frame []byte) SendResult
	Recv() ([]byte, error)
	Close() error
}

// wsConn adapts a *websocket.Conn to Conn. Each channel becomes one
// websocket connection carrying binary SerializedTupleBuffer frames
// (SPEC_FULL.md §4.7 expansion): the library gives framed, ordered
// delivery; this engine still does its own sequence-queue reassembly and
// backpressure bookkeeping on top.
type wsConn struct {
	c         *websocket.Conn
	sendQueue chan []byte
	closed    chan struct{}
}

// writeQueueDepth bounds how many frames can be in flight to the OS socket
// before Send reports SendFull, standing in for the underlying transport's
// own write buffer filling up.
const writeQueueDepth = 64

func newWSConn(c *websocket.Conn) *wsConn {
	wc := &wsConn{c: c, sendQueue: make(chan []byte, writeQueueDepth), closed: make(chan struct{})}
	go wc.writeLoop()
	return wc
}

func (w *wsConn) writeLoop() {
	for {
		select {
		case frame, ok := <-w.sendQueue:
			if !ok {
				return
			}
			if err := w.c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-w.closed:
			return
		}
	}
}

func (w *wsConn) Send(frame []byte) SendResult {
	select {
	case <-w.closed:
		return SendClosed
	default:
	}
	select {
	case w.sendQueue <- frame:
		return SendOk
	default:
		return SendFull
	}
}

func (w *wsConn) Recv() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) Close() error {
	select {
	case <-w.closed:
	default:
		close(w.closed)
	}
	return w.c.Close()
}

// Dial opens a sender-side websocket connection to addr (a "ws://host:port"
// or "wss://host:port" URL, typically derived from a parsed multiaddr bind
// address).
func Dial(addr string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	return newWSConn(c), nil
}

// Listener accepts receiver-side websocket connections, mirroring the
// teacher's HTTP-upgrader idiom (cmd/announce-webui's wsUpgrader) but
// dedicated to this engine's binary channel protocol instead of JSON
// broadcast.
type Listener struct {
	upgrader websocket.Upgrader
	accept   chan Conn
	srv      *http.Server
	ln       net.Listener
}

// NewListener starts accepting websocket connections on bind's TCP address,
// handing each one to the protocol state machine via Accept.
func NewListener(bindAddr string) (*Listener, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("network: listen %s: %w", bindAddr, err)
	}
	l := &Listener{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		accept:   make(chan Conn, 16),
		ln:       ln,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", l.handleUpgrade)
	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	l.accept <- newWSConn(c)
}

// Accept blocks until a new channel connection arrives or timeout elapses.
func (l *Listener) Accept(timeout time.Duration) (Conn, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c := <-l.accept:
		return c, true
	case <-t.C:
		return nil, false
	}
}

// Addr returns the listener's bound TCP address, useful when bindAddr was
// given with an ephemeral port (":0").
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) Close() error {
	return l.srv.Close()
}
