// Command fuse-lsp is the Language Server transport: a JSON-RPC loop over
// stdin/stdout that maps protocol requests onto the pure snapshot
// functions in internal/lspcore. stdout carries only the protocol
// stream; all server logging goes to stderr.
package main

import (
	"context"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"

	"github.com/fuselang/fuse/internal/rtlog"
)

func main() {
	debug := false
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			debug = true
		}
	}
	rtlog.Init(debug)
	defer rtlog.Sync()

	srv := newServer()
	stream := jsonrpc2.NewStream(stdio{})
	conn := jsonrpc2.NewConn(stream)
	srv.conn = conn

	ctx := context.Background()
	conn.Go(ctx, srv.handle)
	<-conn.Done()
}

// stdio adapts the process streams into the single ReadWriteCloser the
// JSON-RPC stream wants.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

var _ io.ReadWriteCloser = stdio{}
