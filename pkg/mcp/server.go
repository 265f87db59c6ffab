package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// Server exposes a tool registry over MCP. The SDK runs tools/call requests
// concurrently and cancels a call's context on notifications/cancelled, so a
// long journey can be stopped by a later call.
type Server struct {
	name     string
	version  string
	registry *tools.Registry
	logger   *logging.Logger
	sdk      *mcpsdk.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The logger must not write to the
// protocol stream.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server named name exposing every tool in registry.
func NewServer(name string, registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		name:     name,
		version:  "dev",
		registry: registry,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: s.name, Version: s.version}, nil)
	for _, t := range registry.List() {
		s.sdk.AddTool(&mcpsdk.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		}, s.handler(t))
	}
	return s
}

// Serve speaks newline-delimited JSON-RPC over r and w until the client
// closes r or ctx is done. r is closed on the way out when it is an
// io.ReadCloser.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	transport := &mcpsdk.IOTransport{Reader: rc, Writer: nopWriteCloser{w}}

	s.logger.Infof("mcp server %s %s ready with %d tools", s.name, s.version, len(s.registry.List()))
	err := s.sdk.Run(ctx, transport)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		s.logger.Infof("mcp input closed")
		return nil
	default:
		return fmt.Errorf("mcp session failed: %w", err)
	}
}

// handler adapts t to the SDK. Tool failures and panics are reported as
// isError results so the client sees them as tool output, not protocol
// errors.
func (s *Server) handler(t tools.Tool) mcpsdk.ToolHandler {
	name := t.Name()
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (res *mcpsdk.CallToolResult, err error) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Errorf("tool %s panicked: %v", name, p)
				res, err = textResult(fmt.Sprintf("tool %s failed: %v", name, p), true), nil
			}
		}()

		args := json.RawMessage("{}")
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = req.Params.Arguments
		}
		s.logger.Debugf("calling tool %s", name)
		text, meta, execErr := t.Execute(ctx, args)
		if execErr != nil {
			s.logger.Warnf("tool %s failed: %v", name, execErr)
			return textResult(execErr.Error(), true), nil
		}
		res = textResult(text, false)
		if len(meta) > 0 {
			res.Meta = mcpsdk.Meta(meta)
		}
		return res, nil
	}
}

func textResult(text string, isError bool) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: isError,
	}
}

// nopWriteCloser keeps the SDK from closing the caller's writer.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
