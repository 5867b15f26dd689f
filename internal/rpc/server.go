// Package rpc implements the stdio transport: line-delimited JSON-RPC
// 2.0 requests on stdin, one response object per line on stdout. This is
// the only surface the agent runtime talks to.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/erauner12/notebridge/internal/noteerr"
	"github.com/erauner12/notebridge/internal/tools"
)

const protocolVersion = "2024-11-05"

// Notes can run large; the scanner must accept a whole request line.
const maxLineBytes = 16 * 1024 * 1024

// Server reads requests from in and writes responses to out. Requests
// are handled sequentially; the write path is still mutex-guarded so
// future concurrent handlers cannot interleave output lines.
type Server struct {
	registry *tools.Registry
	toolCtx  *tools.ToolContext
	logger   zerolog.Logger
	version  string

	in  io.Reader
	out io.Writer

	outMu sync.Mutex

	shuttingDown bool
}

// NewServer builds the stdio server. The registry must already have its
// tools registered.
func NewServer(registry *tools.Registry, toolCtx *tools.ToolContext, logger zerolog.Logger, version string, in io.Reader, out io.Writer) *Server {
	return &Server{
		registry: registry,
		toolCtx:  toolCtx,
		logger:   logger,
		version:  version,
		in:       in,
		out:      out,
	}
}

// Run processes requests until EOF on stdin, an exit request, or ctx
// cancellation. Returns nil on orderly termination.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			// Copy: the scanner reuses its buffer on the next Scan.
			line := append([]byte(nil), scanner.Bytes()...)
			lines <- line
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-scanErr
				if err != nil {
					return fmt.Errorf("stdin read: %w", err)
				}
				s.logger.Info().Msg("stdin closed, stopping")
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if exit := s.handleLine(ctx, line); exit {
				s.logger.Info().Msg("exit requested")
				return nil
			}
		}
	}
}

// handleLine processes one request line. It returns true when the
// client asked the process to exit.
func (s *Server) handleLine(ctx context.Context, line []byte) bool {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.sendError(nil, ParseError, "invalid JSON", nil)
		return false
	}

	if req.JSONRPC != "2.0" {
		if !req.IsNotification() {
			s.sendError(req.ID, InvalidRequest, "invalid jsonrpc version", nil)
		}
		return false
	}

	// After shutdown only exit is honored; other requests are rejected
	// and notifications dropped.
	if s.shuttingDown && req.Method != "exit" {
		if !req.IsNotification() {
			s.sendError(req.ID, InvalidRequest, "server is shutting down", nil)
		}
		return false
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(&req)

	case "notifications/initialized":
		// Acknowledgement notification, nothing to send.

	case "shutdown":
		s.shuttingDown = true
		s.sendResult(req.ID, nil)

	case "exit":
		return true

	case "ping":
		s.sendResult(req.ID, map[string]interface{}{"status": "ok"})

	case "tools/list":
		s.sendResult(req.ID, map[string]interface{}{
			"tools": s.registry.List(),
		})

	case "tools/call":
		s.handleToolsCall(ctx, &req)

	default:
		if req.IsNotification() {
			s.logger.Debug().Str("method", req.Method).Msg("ignoring unknown notification")
			return false
		}
		s.sendError(req.ID, MethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
	return false
}

func (s *Server) handleInitialize(req *JSONRPCRequest) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(req.ID, InvalidParams, "invalid initialize parameters", nil)
			return
		}
	}

	if params.ProtocolVersion != "" && params.ProtocolVersion != protocolVersion {
		// Accepted anyway; clients with newer revisions still speak the
		// subset this bridge uses.
		s.logger.Warn().
			Str("client", params.ProtocolVersion).
			Str("server", protocolVersion).
			Msg("client protocol version mismatch")
	}

	s.logger.Info().
		Str("client", params.ClientInfo.Name).
		Str("clientVersion", params.ClientInfo.Version).
		Msg("initialized")

	capabilities := map[string]interface{}{}
	for _, desc := range s.registry.List() {
		capabilities[desc.Name] = true
	}

	s.sendResult(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": capabilities,
		},
		"serverInfo": map[string]interface{}{
			"name":    "notebridge",
			"version": s.version,
		},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest) {
	var callReq tools.CallRequest
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		s.sendError(req.ID, InvalidParams, "invalid tool call parameters", nil)
		return
	}

	s.logger.Debug().Str("tool", callReq.Name).Msg("tools/call")

	result, err := s.registry.Call(ctx, s.toolCtx, callReq)
	if err != nil {
		code, message, data := noteerr.As(err).JSONRPC()
		s.sendError(req.ID, code, message, data)
		return
	}
	s.sendResult(req.ID, result)
}

func (s *Server) sendResult(id json.RawMessage, result interface{}) {
	if len(id) == 0 {
		return
	}
	raw := mustMarshal(result)
	if result == nil {
		raw = json.RawMessage("null")
	}
	s.write(JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *Server) sendError(id json.RawMessage, code int, message string, data any) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	})
}

func (s *Server) write(resp JSONRPCResponse) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := json.NewEncoder(s.out).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("could not write response")
	}
}
