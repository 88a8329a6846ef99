package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

type seenMsg struct {
	Method string
	Params json.RawMessage
}

// fakeServer answers requests through handle. Returning false leaves the
// request unanswered.
type fakeServer struct {
	in     *bufio.Reader
	out    io.WriteCloser
	handle func(method string, params json.RawMessage) (any, bool)

	mu   sync.Mutex
	seen []seenMsg
}

func (s *fakeServer) run() {
	defer s.out.Close()
	for {
		body, err := ReadMessage(s.in)
		if err != nil {
			return
		}
		var m struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &m); err != nil {
			continue
		}
		s.mu.Lock()
		s.seen = append(s.seen, seenMsg{Method: m.Method, Params: m.Params})
		s.mu.Unlock()
		if len(m.ID) == 0 || m.Method == "" {
			continue
		}
		result, ok := s.handle(m.Method, m.Params)
		if !ok {
			continue
		}
		_ = WriteMessage(s.out, map[string]any{"jsonrpc": "2.0", "id": m.ID, "result": result})
	}
}

func (s *fakeServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.seen {
		out = append(out, m.Method)
	}
	return out
}

func (s *fakeServer) params(method string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.seen {
		if m.Method == method {
			return m.Params
		}
	}
	return nil
}

func newTestClient(t *testing.T, root string, handle func(string, json.RawMessage) (any, bool)) (*Client, *fakeServer) {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	srv := &fakeServer{in: bufio.NewReader(c2sR), out: s2cW, handle: handle}
	go srv.run()
	c := NewClient(s2cR, c2sW, WithRoot(root))
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestTransport_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Request{JSONRPC: "2.0", ID: 7, Method: "textDocument/hover"}); err != nil {
		t.Fatal(err)
	}
	body, err := ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	if req.ID != 7 || req.Method != "textDocument/hover" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestTransport_MissingLength(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("Content-Type: x\r\n\r\n{}"))
	if _, err := ReadMessage(r); err == nil {
		t.Error("expected error for missing Content-Length")
	}
}

func TestClient_Initialize(t *testing.T) {
	c, srv := newTestClient(t, t.TempDir(), func(method string, _ json.RawMessage) (any, bool) {
		return map[string]any{"capabilities": map[string]any{"hoverProvider": true}}, true
	})
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// initialized is a notification; give the server a moment to read it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m := srv.methods(); len(m) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	m := srv.methods()
	if len(m) != 2 || m[0] != "initialize" || m[1] != "initialized" {
		t.Errorf("expected initialize then initialized, got %v", m)
	}
}

func TestClient_Hover(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pkg", "a.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, srv := newTestClient(t, root, func(method string, _ json.RawMessage) (any, bool) {
		if method != "textDocument/hover" {
			return nil, true
		}
		return map[string]any{
			"contents": map[string]any{"kind": "markdown", "value": "```python\nx: int\n```\n---\nthe count"},
		}, true
	})

	h, err := c.Hover(context.Background(), "pkg/a.py", ir.Span{StartLine: 3, StartCol: 4, EndLine: 3, EndCol: 5})
	if err != nil {
		t.Fatalf("hover: %v", err)
	}
	if h == nil || h.Type != "x: int" || h.Doc != "the count" {
		t.Fatalf("unexpected hover %+v", h)
	}

	var params TextDocumentPositionParams
	if err := json.Unmarshal(srv.params("textDocument/hover"), &params); err != nil {
		t.Fatal(err)
	}
	if params.Position.Line != 2 || params.Position.Character != 4 {
		t.Errorf("expected 0-based position 2:4, got %+v", params.Position)
	}
	if srv.params("textDocument/didOpen") == nil {
		t.Error("expected didOpen before the first query")
	}

	// Second query on the same file must not reopen it.
	if _, err := c.Hover(context.Background(), "pkg/a.py", ir.Span{StartLine: 1, EndLine: 1, EndCol: 1}); err != nil {
		t.Fatal(err)
	}
	opens := 0
	for _, m := range srv.methods() {
		if m == "textDocument/didOpen" {
			opens++
		}
	}
	if opens != 1 {
		t.Errorf("expected 1 didOpen, got %d", opens)
	}
}

func TestClient_HoverEmpty(t *testing.T) {
	c, _ := newTestClient(t, t.TempDir(), func(string, json.RawMessage) (any, bool) {
		return nil, true
	})
	h, err := c.Hover(context.Background(), "a.py", ir.Span{StartLine: 1, EndLine: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != nil {
		t.Errorf("expected no hover, got %+v", h)
	}
}

func TestClient_Definition(t *testing.T) {
	root := t.TempDir()
	abs, _ := filepath.Abs(root)
	target := fileURI(filepath.Join(abs, "lib", "util.py"))

	tests := []struct {
		name   string
		result any
	}{
		{"location", map[string]any{
			"uri":   target,
			"range": map[string]any{"start": map[string]int{"line": 9, "character": 4}, "end": map[string]int{"line": 9, "character": 10}},
		}},
		{"links", []any{map[string]any{
			"targetUri":            target,
			"targetRange":          map[string]any{"start": map[string]int{"line": 8}, "end": map[string]int{"line": 12}},
			"targetSelectionRange": map[string]any{"start": map[string]int{"line": 9, "character": 4}, "end": map[string]int{"line": 9, "character": 10}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, root, func(string, json.RawMessage) (any, bool) {
				return tt.result, true
			})
			locs, err := c.Definition(context.Background(), "main.py", ir.Span{StartLine: 1, EndLine: 1})
			if err != nil {
				t.Fatalf("definition: %v", err)
			}
			want := ir.Location{File: "lib/util.py", Span: ir.Span{StartLine: 10, StartCol: 4, EndLine: 10, EndCol: 10}}
			if len(locs) != 1 || locs[0] != want {
				t.Errorf("expected %+v, got %+v", want, locs)
			}
		})
	}
}

func TestClient_ServerGone(t *testing.T) {
	c, srv := newTestClient(t, t.TempDir(), func(string, json.RawMessage) (any, bool) {
		return nil, false
	})
	_ = srv.out.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not notice the closed connection")
	}

	_, err := c.Hover(context.Background(), "a.py", ir.Span{StartLine: 1, EndLine: 1})
	if !errors.Is(err, semantic.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	c, _ := newTestClient(t, t.TempDir(), func(string, json.RawMessage) (any, bool) {
		return nil, false
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.References(ctx, "a.py", ir.Span{StartLine: 1, EndLine: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_RPCError(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	go func() {
		in := bufio.NewReader(c2sR)
		for {
			body, err := ReadMessage(in)
			if err != nil {
				return
			}
			var m struct {
				ID json.RawMessage `json:"id"`
			}
			_ = json.Unmarshal(body, &m)
			if len(m.ID) == 0 {
				continue
			}
			_ = WriteMessage(s2cW, map[string]any{
				"jsonrpc": "2.0", "id": m.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
		}
	}()
	c := NewClient(s2cR, c2sW)
	defer c.Close()

	_, err := c.Definition(context.Background(), "a.py", ir.Span{StartLine: 1, EndLine: 1})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("expected RPC error, got %v", err)
	}
	if errors.Is(err, semantic.ErrUnavailable) {
		t.Error("an RPC error should not mark the provider unavailable")
	}
}

func TestHoverText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"int"`, "int"},
		{"markup", `{"kind":"plaintext","value":"str"}`, "str"},
		{"marked", `{"language":"python","value":"def f() -> None"}`, "def f() -> None"},
		{"array", `["a", {"language":"python","value":"b"}]`, "a\nb"},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hoverText(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
