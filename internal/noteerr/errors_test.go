package noteerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "category only",
			err:  Validation("text and text_patch are mutually exclusive"),
			want: "validation: text and text_patch are mutually exclusive",
		},
		{
			name: "with subcategory",
			err:  Backend(SubConflict, "Save conflict", 409, nil),
			want: "backend/conflict: Save conflict",
		},
		{
			name: "with cause",
			err:  Db("integrity check failed", errors.New("disk I/O error")),
			want: "db: integrity check failed: disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConflictCarriesHint(t *testing.T) {
	err := Backend(SubConflict, "Save conflict", 409, nil)
	if err.Hint != "re-fetch and re-apply" {
		t.Errorf("expected conflict resolution hint, got %q", err.Hint)
	}

	_, _, data := err.JSONRPC()
	if data["hint"] != "re-fetch and re-apply" {
		t.Errorf("expected hint in JSON-RPC data, got %v", data["hint"])
	}
}

func TestJSONRPCCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code int
	}{
		{"validation maps to invalid params", Validation("bad"), -32602},
		{"not found maps to invalid params", NotFound("abc"), -32602},
		{"backend maps to server error", Backend(SubUnknown, "boom", 500, nil), -32000},
		{"auth maps to server error", Auth("Invalid credentials", nil), -32000},
		{"db maps to server error", Db("corrupt", nil), -32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := tt.err.JSONRPC()
			if code != tt.code {
				t.Errorf("JSONRPC() code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	inner := Backend(SubRateLimit, "Rate limit exceeded", 429, nil)
	wrapped := fmt.Errorf("sync cycle: %w", inner)

	var e *Error
	if !errors.As(wrapped, &e) {
		t.Fatal("expected errors.As to find *Error through wrapping")
	}
	if e.Subcategory != SubRateLimit {
		t.Errorf("Subcategory = %s, want %s", e.Subcategory, SubRateLimit)
	}

	if !IsCategory(wrapped, CategoryBackend) {
		t.Error("IsCategory(backend) = false, want true")
	}
	if IsConflict(wrapped) {
		t.Error("IsConflict = true for rate limit error")
	}
}

func TestAsWrapsForeignErrors(t *testing.T) {
	plain := errors.New("something broke")
	e := As(plain)
	if e.Category != CategoryInternal {
		t.Errorf("Category = %s, want %s", e.Category, CategoryInternal)
	}
	if !errors.Is(e, plain) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}
