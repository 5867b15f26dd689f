package patch

import (
	"strings"
	"testing"
)

func str(s string) *string { return &s }

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		ops     []Op
		want    string
		wantErr bool
	}{
		{
			name: "empty patch list is identity",
			text: "a\nb\nc",
			ops:  nil,
			want: "a\nb\nc",
		},
		{
			name: "mod replaces line in place",
			text: "a\nb\nc",
			ops:  []Op{{Op: OpMod, LineNumber: 2, Value: str("B")}},
			want: "a\nB\nc",
		},
		{
			name: "del removes line",
			text: "a\nb\nc",
			ops:  []Op{{Op: OpDel, LineNumber: 2}},
			want: "a\nc",
		},
		{
			name: "out of range del is silent",
			text: "a\nb",
			ops:  []Op{{Op: OpDel, LineNumber: 10}},
			want: "a\nb",
		},
		{
			name: "out of range mod is silent",
			text: "a\nb",
			ops:  []Op{{Op: OpMod, LineNumber: 10, Value: str("X")}},
			want: "a\nb",
		},
		{
			name: "add at line 1 prepends",
			text: "a\nb",
			ops:  []Op{{Op: OpAdd, LineNumber: 1, Value: str("top")}},
			want: "top\na\nb",
		},
		{
			name: "add past end appends",
			text: "a\nb",
			ops:  []Op{{Op: OpAdd, LineNumber: 99, Value: str("end")}},
			want: "a\nb\nend",
		},
		{
			name: "add in middle inserts before addressed line",
			text: "a\nb\nc",
			ops:  []Op{{Op: OpAdd, LineNumber: 2, Value: str("mid")}},
			want: "a\nmid\nb\nc",
		},
		{
			name: "add on empty text yields one line",
			text: "",
			ops:  []Op{{Op: OpAdd, LineNumber: 1, Value: str("first")}},
			want: "first",
		},
		{
			name: "sequential adds shift later targets",
			text: "a\nb",
			ops: []Op{
				{Op: OpAdd, LineNumber: 1, Value: str("x")},
				{Op: OpAdd, LineNumber: 2, Value: str("y")},
			},
			want: "x\na\ny\nb",
		},
		{
			name: "dels apply descending regardless of order given",
			text: "a\nb\nc\nd",
			ops: []Op{
				{Op: OpDel, LineNumber: 1},
				{Op: OpDel, LineNumber: 3},
			},
			want: "b\nd",
		},
		{
			name: "mixed del add mod",
			text: "a\nb\nc\nd",
			ops: []Op{
				{Op: OpDel, LineNumber: 2},
				{Op: OpAdd, LineNumber: 2, Value: str("B")},
				{Op: OpMod, LineNumber: 4, Value: str("D")},
			},
			want: "a\nB\nc\nD",
		},
		{
			name: "mod addresses pre-delete numbering",
			text: "a\nb\nc",
			ops: []Op{
				{Op: OpDel, LineNumber: 1},
				{Op: OpMod, LineNumber: 3, Value: str("C")},
			},
			want: "b\nC",
		},
		{
			name:    "mod without value rejected",
			text:    "a",
			ops:     []Op{{Op: OpMod, LineNumber: 1}},
			wantErr: true,
		},
		{
			name:    "add without value rejected",
			text:    "a",
			ops:     []Op{{Op: OpAdd, LineNumber: 1}},
			wantErr: true,
		},
		{
			name:    "unknown op rejected",
			text:    "a",
			ops:     []Op{{Op: "replace", LineNumber: 1, Value: str("x")}},
			wantErr: true,
		},
		{
			name:    "line number zero rejected",
			text:    "a",
			ops:     []Op{{Op: OpDel, LineNumber: 0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.text, tt.ops)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyModsPreserveLineCount(t *testing.T) {
	text := "one\ntwo\nthree\nfour"
	ops := []Op{
		{Op: OpMod, LineNumber: 1, Value: str("ONE")},
		{Op: OpMod, LineNumber: 4, Value: str("FOUR")},
	}

	got, err := Apply(text, ops)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := len(strings.Split(text, "\n")), len(strings.Split(got, "\n")); want != have {
		t.Errorf("line count changed: %d -> %d", want, have)
	}
}

func TestApplyLineCountArithmetic(t *testing.T) {
	// k valid adds and d valid dels change line count by k - d.
	text := "a\nb\nc\nd\ne"
	ops := []Op{
		{Op: OpDel, LineNumber: 5},
		{Op: OpDel, LineNumber: 1},
		{Op: OpAdd, LineNumber: 1, Value: str("x")},
		{Op: OpAdd, LineNumber: 2, Value: str("y")},
		{Op: OpAdd, LineNumber: 100, Value: str("z")},
	}

	got, err := Apply(text, ops)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := 5+3-2, len(strings.Split(got, "\n")); want != have {
		t.Errorf("line count = %d, want %d", have, want)
	}
}
