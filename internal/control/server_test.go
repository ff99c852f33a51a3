package control

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

type fakeBackend struct {
	paused   string
	shutdown bool
}

func (f *fakeBackend) Status() (interface{}, error)      { return map[string]string{"state": "running"}, nil }
func (f *fakeBackend) Health() (interface{}, error)       { return map[string]string{"status": "ok"}, nil }
func (f *fakeBackend) TasksStats() (interface{}, error)   { return []interface{}{}, nil }
func (f *fakeBackend) TasksProfile() (interface{}, error) { return map[string]interface{}{}, nil }
func (f *fakeBackend) Pause(threadID string) error        { f.paused = threadID; return nil }
func (f *fakeBackend) Resume(threadID string) error       { f.paused = ""; return nil }
func (f *fakeBackend) StepIn(threadID string) error       { return nil }
func (f *fakeBackend) StepOver(string, int) error         { return nil }
func (f *fakeBackend) StepOut(string, int) error          { return nil }
func (f *fakeBackend) SetBreakpoints(uint32, []BreakpointSpec) (uint64, error) { return 1, nil }
func (f *fakeBackend) ClearBreakpoints(uint32) error       { return nil }
func (f *fakeBackend) ListBreakpoints(uint32) ([]BreakpointSpec, error) { return nil, nil }
func (f *fakeBackend) IoRead(string) (interface{}, error)  { return true, nil }
func (f *fakeBackend) IoWrite(string, interface{}) error   { return nil }
func (f *fakeBackend) IoForce(string, interface{}) error   { return nil }
func (f *fakeBackend) IoUnforce(string) error               { return nil }
func (f *fakeBackend) Eval(string) (interface{}, error)    { return 42, nil }
func (f *fakeBackend) Set(string, interface{}) error        { return nil }
func (f *fakeBackend) Restart(string) error                 { return nil }
func (f *fakeBackend) Shutdown() error                      { f.shutdown = true; return nil }
func (f *fakeBackend) ConfigGet(string) (interface{}, error) { return "v", nil }
func (f *fakeBackend) ConfigSet(string, interface{}) error   { return nil }
func (f *fakeBackend) Scopes(string) (interface{}, error)    { return []interface{}{}, nil }
func (f *fakeBackend) Variables(string) (interface{}, error) { return []interface{}{}, nil }
func (f *fakeBackend) UpdateWatchdog(string, int64, int) error { return nil }
func (f *fakeBackend) UpdateIoSafeState(string, interface{}) error { return nil }
func (f *fakeBackend) MeshSnapshot() (interface{}, error)      { return map[string]interface{}{}, nil }
func (f *fakeBackend) MeshApply(interface{}) error             { return nil }

func roundTrip(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestUnixTransportNeedsNoAuth(t *testing.T) {
	l, err := net.Listen("unix", t.TempDir()+"/ctl.sock")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	be := &fakeBackend{}
	srv := NewServer(be, nil)
	go srv.Serve(l, TransportUnix)

	conn, err := net.Dial("unix", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, Request{ID: "1", Type: "status"})
	if resp.Error != nil {
		t.Fatalf("status failed without auth over unix: %+v", resp.Error)
	}
}

func TestTCPTransportRequiresAuth(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	be := &fakeBackend{}
	srv := NewServer(be, nil)
	srv.AuthToken = "secret"
	go srv.Serve(l, TransportTCP)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, Request{ID: "1", Type: "status"})
	if resp.Error == nil {
		t.Fatal("expected auth error without a token")
	}

	conn2, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn2.Close()
	resp2 := roundTrip(t, conn2, Request{ID: "2", Type: "status", Auth: "secret"})
	if resp2.Error != nil {
		t.Fatalf("status failed with correct auth: %+v", resp2.Error)
	}
}

func TestUnknownTypeReturnsUnknown(t *testing.T) {
	l, err := net.Listen("unix", t.TempDir()+"/ctl.sock")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	be := &fakeBackend{}
	srv := NewServer(be, nil)
	go srv.Serve(l, TransportUnix)

	conn, err := net.Dial("unix", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, Request{ID: "1", Type: "frobnicate"})
	if resp.Error == nil || resp.Error.Message != "unknown" {
		t.Fatalf("resp = %+v, want error.message = \"unknown\"", resp)
	}
}
