package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/erauner12/notebridge/internal/noteerr"
	"github.com/erauner12/notebridge/internal/tools"
)

// newTestServer wires a registry with one echo tool and one failing
// tool; protocol tests do not need the real store-backed handlers.
func newTestServer(in string) (*Server, *bytes.Buffer) {
	registry := tools.NewRegistry()
	registry.MustRegister(tools.ToolDefinition{
		Name:        "echo",
		Description: "echoes its arguments",
		InputSchema: tools.BuildSchema(map[string]any{"msg": tools.StringSchema("message")}, nil),
	}, func(_ context.Context, _ *tools.ToolContext, raw json.RawMessage) (interface{}, error) {
		var p map[string]any
		json.Unmarshal(raw, &p)
		return p, nil
	})
	registry.MustRegister(tools.ToolDefinition{
		Name:        "fail",
		Description: "always fails",
		InputSchema: tools.BuildSchema(nil, nil),
	}, func(_ context.Context, _ *tools.ToolContext, _ json.RawMessage) (interface{}, error) {
		return nil, noteerr.Validation("bad input")
	})

	out := &bytes.Buffer{}
	logger := zerolog.Nop()
	srv := NewServer(registry, nil, logger, "0.0.0-test", strings.NewReader(in), out)
	return srv, out
}

// run executes the server over the scripted input and returns one parsed
// response per output line.
func run(t *testing.T, in string) []JSONRPCResponse {
	t.Helper()

	srv, out := newTestServer(in)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var responses []JSONRPCResponse
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var resp JSONRPCResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestInitialize(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"agent","version":"9"}}}`+"\n")
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "notebridge" || result.ServerInfo.Version != "0.0.0-test" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if _, ok := result.Capabilities["tools"]; !ok {
		t.Error("capabilities missing tools")
	}
}

func TestInitializeVersionMismatchAccepted(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2199-01-01"}}`+"\n")
	if len(responses) != 1 || responses[0].Error != nil {
		t.Fatalf("mismatched client version must still initialize: %+v", responses)
	}
}

func TestNotificationsEmitNothing(t *testing.T) {
	responses := run(t, strings.Join([]string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/unknown-thing"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n")+"\n")
	if len(responses) != 1 {
		t.Fatalf("notifications must not be answered, got %d responses", len(responses))
	}
	if string(responses[0].ID) != "2" {
		t.Errorf("response id = %s", responses[0].ID)
	}
}

func TestShutdownAndExit(t *testing.T) {
	srv, out := newTestServer(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","method":"exit"}`,
		`{"jsonrpc":"2.0","id":9,"method":"ping"}`,
	}, "\n") + "\n")

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("requests after exit must not be processed, got %d lines", len(lines))
	}
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.Result) != "null" {
		t.Errorf("shutdown result = %s, want null", resp.Result)
	}
}

func TestRequestsAfterShutdownRejected(t *testing.T) {
	responses := run(t, strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"exit"}`,
	}, "\n")+"\n")

	if len(responses) != 2 {
		t.Fatalf("responses = %d, want shutdown result plus rejection", len(responses))
	}
	if string(responses[0].Result) != "null" {
		t.Errorf("shutdown result = %s, want null", responses[0].Result)
	}
	if responses[1].Error == nil || responses[1].Error.Code != InvalidRequest {
		t.Errorf("post-shutdown request error = %+v, want code %d", responses[1].Error, InvalidRequest)
	}
}

func TestParseAndRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCode int
	}{
		{"parse error", `{not json`, ParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, InvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, MethodNotFound},
		{"bad call params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"zzz"}`, InvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := run(t, tt.line+"\n")
			if len(responses) != 1 || responses[0].Error == nil {
				t.Fatalf("responses = %+v", responses)
			}
			if responses[0].Error.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", responses[0].Error.Code, tt.wantCode)
			}
		})
	}
}

func TestToolsList(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n")
	var result struct {
		Tools []tools.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(result.Tools) != 2 || result.Tools[0].Name != "echo" {
		t.Errorf("tools = %+v", result.Tools)
	}
	if result.Tools[0].InputSchema == nil {
		t.Error("descriptor missing inputSchema")
	}
}

func TestToolsCall(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"msg":"hi"}}}`+"\n")
	var result tools.CallResult
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("content = %+v", result.Content)
	}
	if !strings.Contains(result.Content[0].Text, `"msg":"hi"`) {
		t.Errorf("echoed payload = %q", result.Content[0].Text)
	}
}

func TestToolsCallErrorMapping(t *testing.T) {
	responses := run(t, strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fail","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nonexistent","arguments":{}}}`,
	}, "\n")+"\n")
	if len(responses) != 2 {
		t.Fatalf("responses = %d", len(responses))
	}
	for i, resp := range responses {
		if resp.Error == nil || resp.Error.Code != InvalidParams {
			t.Errorf("response %d error = %+v, want code %d", i, resp.Error, InvalidParams)
		}
	}
	if responses[0].Error.Message != "bad input" {
		t.Errorf("message = %q", responses[0].Error.Message)
	}
}

func TestIsNotification(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{``, true},
		{`null`, true},
		{`1`, false},
		{`"abc"`, false},
		{`0`, false},
	}
	for _, tt := range tests {
		req := JSONRPCRequest{}
		if tt.id != "" {
			req.ID = json.RawMessage(tt.id)
		}
		if got := req.IsNotification(); got != tt.want {
			t.Errorf("IsNotification(id=%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
