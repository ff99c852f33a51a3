package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/ironrail/stcore/internal/vmerr"
)

// Transport distinguishes the two listeners spec.md requires: a Unix
// domain socket (no auth) and TCP (auth required).
type Transport int

const (
	TransportUnix Transport = iota
	TransportTCP
)

// Server accepts client connections on one or more listeners and
// dispatches newline-delimited JSON requests to a Backend.
type Server struct {
	Backend   Backend
	AuthToken string // required for TransportTCP connections
	Log       *log.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func NewServer(b Backend, log *log.Logger) *Server {
	return &Server{Backend: b, Log: log, sessions: make(map[*session]struct{})}
}

// Serve accepts connections from l until it returns an error (typically
// from the listener being closed), treating each as transport-typed per
// the caller's declared Transport.
func (s *Server) Serve(l net.Listener, transport Transport) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn, transport)
	}
}

// Broadcast publishes ev to every connected client, used by the
// engine's stop-event emitter to fan a debug stop out to every session.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.sendEvent(ev)
	}
}

type session struct {
	conn      net.Conn
	w         *bufio.Writer
	writeMu   sync.Mutex
	server    *Server
	transport Transport
	authed    bool
}

func (s *Server) handle(conn net.Conn, transport Transport) {
	sess := &session{conn: conn, w: bufio.NewWriter(conn), server: s, transport: transport}
	sess.authed = transport == TransportUnix // Unix socket transport needs no auth

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			sess.sendResponse(errorResponse("", "ControlError", fmt.Sprintf("malformed request: %v", err)))
			continue
		}
		resp := sess.dispatch(req)
		sess.sendResponse(resp)
		if req.Type == "shutdown" && resp.Error == nil {
			return
		}
	}
}

func (s *session) sendResponse(r Response) {
	s.writeJSON(r)
}

func (s *session) sendEvent(e Event) {
	s.writeJSON(e)
}

func (s *session) writeJSON(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.w.Write(data)
	s.w.WriteByte('\n')
	s.w.Flush()
}

func (s *session) dispatch(req Request) Response {
	if s.transport == TransportTCP && !s.authed {
		if req.Auth == "" || req.Auth != s.server.AuthToken {
			return errorResponse(req.ID, "ControlError", "authentication required")
		}
		s.authed = true
	}
	result, err := route(s.server.Backend, req.Type, req.Params)
	if err != nil {
		if err == errUnknownType {
			return errorResponse(req.ID, "ControlError", "unknown")
		}
		return errorResponse(req.ID, errKind(err), err.Error())
	}
	return okResponse(req.ID, result)
}

func errKind(err error) string {
	if ve, ok := err.(*vmerr.Error); ok {
		return ve.Kind.String()
	}
	return "ControlError"
}
