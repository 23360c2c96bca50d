package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/lspcore"
	"github.com/fuselang/fuse/internal/rtlog"
)

// server owns document state and the connection; analysis itself is
// delegated to lspcore, which is pure over snapshots.
type server struct {
	conn jsonrpc2.Conn

	mu        sync.Mutex
	documents map[uri.URI]string
	workspace *lspcore.WorkspaceConfig
	rootDir   string
}

func newServer() *server {
	return &server{
		documents: make(map[uri.URI]string),
		workspace: &lspcore.WorkspaceConfig{},
	}
}

func (s *server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case protocol.MethodInitialize:
		return s.initialize(ctx, reply, req)
	case protocol.MethodInitialized:
		return reply(ctx, nil, nil)
	case protocol.MethodShutdown:
		return reply(ctx, nil, nil)
	case protocol.MethodExit:
		return s.conn.Close()
	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		s.setDocument(params.TextDocument.URI, params.TextDocument.Text)
		s.publishDiagnostics(ctx, params.TextDocument.URI)
		return nil
	case protocol.MethodTextDocumentDidChange:
		var params protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		// Full-sync: the last change carries the whole buffer.
		if len(params.ContentChanges) > 0 {
			s.setDocument(params.TextDocument.URI, params.ContentChanges[len(params.ContentChanges)-1].Text)
		}
		s.publishDiagnostics(ctx, params.TextDocument.URI)
		return nil
	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.documents, params.TextDocument.URI)
		s.mu.Unlock()
		return nil
	case protocol.MethodTextDocumentHover:
		return s.hover(ctx, reply, req)
	case protocol.MethodTextDocumentDefinition:
		return s.definition(ctx, reply, req)
	case protocol.MethodTextDocumentCompletion:
		return s.completion(ctx, reply, req)
	case protocol.MethodTextDocumentFormatting:
		return s.formatting(ctx, reply, req)
	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (s *server) initialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return err
	}
	if params.RootURI != "" {
		s.rootDir = params.RootURI.Filename()
		if cfg, err := lspcore.LoadWorkspaceConfig(s.rootDir); err != nil {
			rtlog.L().Warnw("workspace config unreadable", "dir", s.rootDir, "err", err)
		} else {
			s.workspace = cfg
		}
	}
	return reply(ctx, protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			HoverProvider:              true,
			DefinitionProvider:         true,
			CompletionProvider:         &protocol.CompletionOptions{},
			DocumentFormattingProvider: true,
		},
		ServerInfo: &protocol.ServerInfo{Name: "fuse-lsp"},
	}, nil)
}

func (s *server) setDocument(u uri.URI, text string) {
	s.mu.Lock()
	s.documents[u] = text
	s.mu.Unlock()
}

// snapshot analyzes one document against every open buffer, relinking the
// registry from in-memory text rather than disk.
func (s *server) snapshot(u uri.URI) (*lspcore.Snapshot, string, bool) {
	s.mu.Lock()
	src, ok := s.documents[u]
	overrides := make(map[string]string, len(s.documents))
	for du, text := range s.documents {
		overrides[du.Filename()] = text
	}
	strict := s.workspace.Strict
	s.mu.Unlock()
	if !ok {
		return nil, "", false
	}
	snap := lspcore.Analyze(u.Filename(), src, overrides, lspcore.Options{Strict: strict})
	return snap, src, true
}

func (s *server) publishDiagnostics(ctx context.Context, u uri.URI) {
	snap, src, ok := s.snapshot(u)
	if !ok {
		return
	}
	items := make([]protocol.Diagnostic, 0, len(snap.Diags))
	for _, d := range snap.Diags {
		severity := protocol.DiagnosticSeverityError
		if d.Level == diagnostics.Warning {
			severity = protocol.DiagnosticSeverityWarning
		}
		items = append(items, protocol.Diagnostic{
			Range:    spanRange(src, d.Span.Start, d.Span.End),
			Severity: severity,
			Source:   "fuse",
			Message:  d.Message,
		})
	}
	if err := s.conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         u,
		Diagnostics: items,
	}); err != nil {
		rtlog.L().Warnw("publishDiagnostics failed", "err", err)
	}
}

func (s *server) hover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.HoverParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return err
	}
	snap, src, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return reply(ctx, nil, nil)
	}
	offset := positionOffset(src, params.Position)
	text, found := snap.Hover(params.TextDocument.URI.Filename(), src, offset)
	if !found {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: "```fuse\n" + text + "\n```",
		},
	}, nil)
}

func (s *server) definition(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DefinitionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return err
	}
	snap, src, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return reply(ctx, nil, nil)
	}
	offset := positionOffset(src, params.Position)
	defPath, span, found := snap.Definition(params.TextDocument.URI.Filename(), src, offset)
	if !found || strings.HasPrefix(defPath, "<") {
		// Virtual std modules have no file to jump to.
		return reply(ctx, nil, nil)
	}
	defSrc := src
	if defPath != params.TextDocument.URI.Filename() {
		s.mu.Lock()
		defSrc = s.documents[uri.File(defPath)]
		s.mu.Unlock()
	}
	return reply(ctx, []protocol.Location{{
		URI:   uri.File(defPath),
		Range: spanRange(defSrc, span.Start, span.End),
	}}, nil)
}

var completionKinds = map[string]protocol.CompletionItemKind{
	"function": protocol.CompletionItemKindFunction,
	"type":     protocol.CompletionItemKindStruct,
	"enum":     protocol.CompletionItemKindEnum,
	"config":   protocol.CompletionItemKindModule,
	"service":  protocol.CompletionItemKindInterface,
	"keyword":  protocol.CompletionItemKindKeyword,
}

func (s *server) completion(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CompletionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return err
	}
	snap, _, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return reply(ctx, nil, nil)
	}
	var items []protocol.CompletionItem
	for _, c := range snap.Completions(params.TextDocument.URI.Filename()) {
		items = append(items, protocol.CompletionItem{
			Label: c.Label,
			Kind:  completionKinds[c.Kind],
		})
	}
	return reply(ctx, protocol.CompletionList{IsIncomplete: false, Items: items}, nil)
}

func (s *server) formatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return err
	}
	s.mu.Lock()
	enabled := s.workspace.FormatOnSave == nil || *s.workspace.FormatOnSave
	src, ok := s.documents[params.TextDocument.URI]
	s.mu.Unlock()
	if !ok || !enabled {
		return reply(ctx, nil, nil)
	}
	formatted, diags := lspcore.FormatSource(src)
	for _, d := range diags {
		if d.Level == diagnostics.Error {
			// Never reformat a buffer that does not parse.
			return reply(ctx, nil, nil)
		}
	}
	if formatted == src {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, []protocol.TextEdit{{
		Range:   spanRange(src, 0, len(src)),
		NewText: formatted,
	}}, nil)
}

// positionOffset converts an LSP line/character position into a byte
// offset into src.
func positionOffset(src string, pos protocol.Position) int {
	offset := 0
	line := uint32(0)
	for line < pos.Line && offset < len(src) {
		if src[offset] == '\n' {
			line++
		}
		offset++
	}
	offset += int(pos.Character)
	if offset > len(src) {
		offset = len(src)
	}
	return offset
}

// spanRange converts a byte span into an LSP range.
func spanRange(src string, start, end int) protocol.Range {
	return protocol.Range{
		Start: offsetPosition(src, start),
		End:   offsetPosition(src, end),
	}
}

func offsetPosition(src string, offset int) protocol.Position {
	if offset > len(src) {
		offset = len(src)
	}
	var line, col uint32
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return protocol.Position{Line: line, Character: col}
}
