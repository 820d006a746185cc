// Package jambonz implements the telephony WebSocket application protocol:
// one socket per phone call carrying an inbound event stream (session:new,
// webhook frames, close) and outbound verb batches (answer, say, dial, llm,
// ...). The endpoint hosts named services, each bound to a URL path.
package jambonz

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/binaryelements/becaller/pkg/logging"
)

// SessionHandler receives each new call delivered to a service.
type SessionHandler func(sess *Session)

// Endpoint hosts telephony services and upgrades their WebSocket traffic.
type Endpoint struct {
	log      *logging.Logger
	upgrader websocket.Upgrader

	keepAliveInterval time.Duration

	mu       sync.RWMutex
	services map[string]*Service
}

// NewEndpoint creates an endpoint. keepAliveInterval > 0 enables periodic
// WebSocket pings on every call socket.
func NewEndpoint(log *logging.Logger, keepAliveInterval time.Duration) *Endpoint {
	if log == nil {
		log = logging.Default()
	}
	return &Endpoint{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		keepAliveInterval: keepAliveInterval,
		services:          make(map[string]*Service),
	}
}

// Service is a named call-handling application bound to a path.
type Service struct {
	path    string
	ep      *Endpoint
	handler SessionHandler
}

// MakeService registers a service at the given path.
func (e *Endpoint) MakeService(path string) *Service {
	svc := &Service{path: path, ep: e}
	e.mu.Lock()
	e.services[path] = svc
	e.mu.Unlock()
	return svc
}

// OnSession sets the handler invoked for each new call.
func (svc *Service) OnSession(h SessionHandler) {
	svc.handler = h
}

// Mount attaches every registered service's WebSocket route to the router.
func (e *Endpoint) Mount(r chi.Router) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for path, svc := range e.services {
		r.Get(path, e.wsHandler(svc))
	}
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (e *Endpoint) wsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			e.log.Error("websocket upgrade failed", "path", svc.path, "error", err)
			return
		}
		e.serveConn(svc, conn)
	}
}

// serveConn runs the per-call read loop. Handlers for one call are invoked
// sequentially from this loop, preserving arrival order.
func (e *Endpoint) serveConn(svc *Service, conn *websocket.Conn) {
	writer := &wsConn{conn: conn}
	var sess *Session

	done := make(chan struct{})
	defer close(done)
	if e.keepAliveInterval > 0 {
		go func() {
			ticker := time.NewTicker(e.keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := writer.ping(); err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNormalClosure
			reason := ""
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
				reason = ce.Text
			}
			if sess != nil {
				sess.HandleClose(code, reason)
			}
			_ = conn.Close()
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			e.log.Warn("dropping malformed frame", "path", svc.path, "error", err)
			continue
		}

		switch frame.Type {
		case frameSessionNew:
			var info SessionInfo
			if len(frame.Data) > 0 {
				if err := json.Unmarshal(frame.Data, &info); err != nil {
					e.log.Warn("malformed session:new payload", "path", svc.path, "error", err)
					continue
				}
			}
			if info.CallSID == "" {
				info.CallSID = frame.CallSID
			}
			sess = NewSession(writer, info, e.log, conn.Close)
			sess.mu.Lock()
			sess.pendingMsgID = frame.MsgID
			sess.mu.Unlock()
			if svc.handler != nil {
				svc.handler(sess)
			}

		case frameVerbHook:
			if sess == nil {
				e.log.Warn("hook frame before session:new", "path", svc.path, "hook", frame.Hook)
				continue
			}
			sess.HandleHook(frame.Hook, frame.MsgID, frame.Data)

		case frameCallStatus:
			if sess != nil {
				sess.HandleHook(frameCallStatus, frame.MsgID, frame.Data)
			}

		case frameError:
			if sess != nil {
				sess.HandleError(&TransportError{CallSID: sess.Info.CallSID, Reason: frame.Reason})
			}

		default:
			e.log.Debug("ignoring frame", "type", frame.Type, "path", svc.path)
		}
	}
}

// TransportError is an error frame delivered by the platform mid-call.
type TransportError struct {
	CallSID string
	Reason  string
}

func (e *TransportError) Error() string {
	return "jambonz: transport error on call " + e.CallSID + ": " + e.Reason
}
