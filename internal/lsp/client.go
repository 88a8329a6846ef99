// Package lsp is a minimal Language Server Protocol client used as a type
// inference provider. Only hover, definition and references are spoken.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

// Client talks JSON-RPC to a language server over a pair of streams. It is
// safe for concurrent use.
type Client struct {
	root       string
	languageID string
	logger     *slog.Logger

	r      *bufio.Reader
	w      io.WriteCloser
	cmd    *exec.Cmd
	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *Response
	opened  map[string]bool
	closed  bool
	err     error
	done    chan struct{}
}

var _ semantic.Inferrer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRoot sets the workspace root. Files passed to the client are relative
// to it.
func WithRoot(dir string) Option {
	return func(c *Client) { c.root = dir }
}

func WithLanguageID(id string) Option {
	return func(c *Client) { c.languageID = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an already connected server and starts reading from it.
func NewClient(r io.Reader, w io.WriteCloser, opts ...Option) *Client {
	c := &Client{
		root:       ".",
		languageID: "python",
		logger:     slog.Default(),
		r:          bufio.NewReader(r),
		w:          w,
		pending:    make(map[int64]chan *Response),
		opened:     make(map[string]bool),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Start launches command as a language server on stdio and performs the
// initialize handshake. A failure here means inference is unavailable, and
// the returned error wraps semantic.ErrUnavailable.
func Start(ctx context.Context, command string, args []string, opts ...Option) (*Client, error) {
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin: %v", semantic.ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %v", semantic.ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", semantic.ErrUnavailable, command, err)
	}

	c := NewClient(stdout, stdin, opts...)
	c.cmd = cmd
	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize performs the initialize/initialized exchange.
func (c *Client) Initialize(ctx context.Context) error {
	root, err := filepath.Abs(c.root)
	if err != nil {
		return err
	}
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   fileURI(root),
		Capabilities: ClientCapabilities{
			TextDocument: &TextDocumentClientCapabilities{
				Hover: &HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
			},
		},
	}
	var result InitializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("%w: initialize: %v", semantic.ErrUnavailable, err)
	}
	return c.notify("initialized", struct{}{})
}

// Shutdown asks the server to exit and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.call(ctx, "shutdown", nil, nil); err != nil {
		c.logger.Debug("lsp shutdown failed", "error", err)
	}
	_ = c.notify("exit", nil)
	return c.Close()
}

// Close drops the connection without the shutdown exchange and waits for a
// started server process to exit.
func (c *Client) Close() error {
	err := c.w.Close()
	if c.cmd != nil {
		if werr := c.cmd.Wait(); werr != nil && err == nil {
			c.logger.Debug("lsp server exited", "error", werr)
		}
	}
	return err
}

func (c *Client) Hover(ctx context.Context, file string, span ir.Span) (*semantic.Hover, error) {
	if err := c.ensureOpen(file); err != nil {
		return nil, err
	}
	var h *Hover
	if err := c.call(ctx, "textDocument/hover", c.positionParams(file, span), &h); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	typ, doc := splitHover(hoverText(h.Contents))
	if typ == "" {
		return nil, nil
	}
	return &semantic.Hover{Type: typ, Doc: doc}, nil
}

func (c *Client) Definition(ctx context.Context, file string, span ir.Span) ([]ir.Location, error) {
	if err := c.ensureOpen(file); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/definition", c.positionParams(file, span), &raw); err != nil {
		return nil, err
	}
	return c.decodeLocations(raw)
}

func (c *Client) References(ctx context.Context, file string, span ir.Span) ([]ir.Location, error) {
	if err := c.ensureOpen(file); err != nil {
		return nil, err
	}
	pos := c.positionParams(file, span)
	params := ReferenceParams{
		TextDocument: pos.TextDocument,
		Position:     pos.Position,
		Context:      ReferenceContext{IncludeDeclaration: false},
	}
	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/references", params, &raw); err != nil {
		return nil, err
	}
	return c.decodeLocations(raw)
}

func (c *Client) positionParams(file string, span ir.Span) TextDocumentPositionParams {
	return TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: c.uri(file)},
		Position:     Position{Line: span.StartLine - 1, Character: span.StartCol},
	}
}

// ensureOpen sends didOpen the first time a file is queried. A file that
// cannot be read is left to the server.
func (c *Client) ensureOpen(file string) error {
	c.mu.Lock()
	if c.opened[file] {
		c.mu.Unlock()
		return nil
	}
	c.opened[file] = true
	c.mu.Unlock()

	text, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(file)))
	if err != nil {
		c.logger.Debug("lsp didOpen skipped", "file", file, "error", err)
		return nil
	}
	return c.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        c.uri(file),
			LanguageID: c.languageID,
			Version:    1,
			Text:       string(text),
		},
	})
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%w: connection closed: %v", semantic.ErrUnavailable, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return fmt.Errorf("%w: connection closed: %v", semantic.ErrUnavailable, err)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) notify(method string, params any) error {
	return c.write(Request{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *Client) write(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteMessage(c.w, msg); err != nil {
		return fmt.Errorf("%w: write: %v", semantic.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		body, err := ReadMessage(c.r)
		if err != nil {
			c.fail(err)
			return
		}

		var msg Response
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Warn("lsp: undecodable message", "error", err)
			continue
		}

		if msg.Method != "" {
			// Server requests such as workDoneProgress/create expect an answer.
			if len(msg.ID) > 0 {
				_ = c.write(reply{JSONRPC: jsonrpcVersion, ID: msg.ID, Result: nil})
			}
			continue
		}

		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

// fail closes the connection and releases every waiting caller.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.done)
	_ = c.w.Close()
	c.logger.Debug("lsp connection closed", "error", err)
}

// Done is closed once the connection to the server is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) uri(file string) string {
	p := filepath.Join(c.root, filepath.FromSlash(file))
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return fileURI(p)
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// relPath maps a server URI back to a root-relative slash path. Locations
// outside the root keep their absolute path.
func (c *Client) relPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	p := filepath.FromSlash(u.Path)
	root, err := filepath.Abs(c.root)
	if err != nil {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// decodeLocations accepts Location, []Location and []LocationLink.
func (c *Client) decodeLocations(raw json.RawMessage) ([]ir.Location, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	type either struct {
		URI                  string `json:"uri"`
		Range                Range  `json:"range"`
		TargetURI            string `json:"targetUri"`
		TargetSelectionRange Range  `json:"targetSelectionRange"`
	}
	var items []either
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
	} else {
		var one either
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		items = []either{one}
	}

	locs := make([]ir.Location, 0, len(items))
	for _, it := range items {
		uri, rng := it.URI, it.Range
		if it.TargetURI != "" {
			uri, rng = it.TargetURI, it.TargetSelectionRange
		}
		if uri == "" {
			continue
		}
		locs = append(locs, ir.Location{File: c.relPath(uri), Span: toSpan(rng)})
	}
	return locs, nil
}

func toSpan(r Range) ir.Span {
	return ir.Span{
		StartLine: r.Start.Line + 1,
		StartCol:  r.Start.Character,
		EndLine:   r.End.Line + 1,
		EndCol:    r.End.Character,
	}
}

// hoverText flattens the three shapes hover contents can take.
func hoverText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var mc MarkupContent
	if err := json.Unmarshal(raw, &mc); err == nil && mc.Value != "" {
		return mc.Value
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out []string
		for _, p := range parts {
			if t := hoverText(p); t != "" {
				out = append(out, t)
			}
		}
		return strings.Join(out, "\n")
	}
	return ""
}

// splitHover takes the first code line as the type and the remaining prose
// as documentation.
func splitHover(text string) (typ, doc string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var rest []string
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if trimmed == "" || trimmed == "---" {
			continue
		}
		if typ == "" {
			typ = trimmed
			continue
		}
		if !inFence {
			rest = append(rest, trimmed)
		}
	}
	return typ, strings.Join(rest, "\n")
}
