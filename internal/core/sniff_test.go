package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseTable_Delimiter(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantHeader []string
		wantRows   int
	}{
		{"comma", "a,b\n1,2\n", []string{"a", "b"}, 1},
		{"pipe", "a|b\n1|2\n3|4\n", []string{"a", "b"}, 2},
		{"pipe with comma in value", "name|note\nbob|hello, world\namy|fine\n", []string{"name", "note"}, 2},
		{"single column without pipe", "a\n1\n", []string{"a"}, 1},
		{"comma wins when several columns", "a|x,b\n1,2\n", []string{"a|x", "b"}, 1},
		{"bom stripped", "\xEF\xBB\xBFid,name\n1,x\n", []string{"id", "name"}, 1},
		{"blank lines skipped", "a,b\n\n1,2\n\n", []string{"a", "b"}, 1},
		{"header only", "a,b\n", []string{"a", "b"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParseTable([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseTable: %v", err)
			}
			if got := tbl.Header(); !reflect.DeepEqual(got, tt.wantHeader) {
				t.Errorf("header = %q, want %q", got, tt.wantHeader)
			}
			if got := tbl.NumRows(); got != tt.wantRows {
				t.Errorf("rows = %d, want %d", got, tt.wantRows)
			}
		})
	}
}

func TestParseTable_PipeKeepsCommas(t *testing.T) {
	tbl, err := ParseTable([]byte("name|note\nbob|hello, world\n"))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if got := tbl.Columns[1].Values[0].String; got != "hello, world" {
		t.Errorf("note = %q, want %q", got, "hello, world")
	}
}

func TestParseTable_Empty(t *testing.T) {
	tbl, err := ParseTable(nil)
	if err != nil {
		t.Fatalf("ParseTable(nil): %v", err)
	}
	if tbl.NumCols() != 0 || tbl.NumRows() != 0 {
		t.Errorf("got %d cols %d rows, want empty table", tbl.NumCols(), tbl.NumRows())
	}
}

func TestParseTable_RowShape(t *testing.T) {
	tbl, err := ParseTable([]byte("a,b,c\n1,2\n"))
	if err != nil {
		t.Fatalf("short row: %v", err)
	}
	if v := tbl.Columns[2].Values[0]; v.Valid {
		t.Errorf("padded cell = %+v, want missing", v)
	}

	_, err = ParseTable([]byte("a,b\n1,2,3\n"))
	if !errors.Is(err, ErrParse) {
		t.Errorf("long row error = %v, want ErrParse", err)
	}
}

func TestParseTable_MissingTokens(t *testing.T) {
	tbl, err := ParseTable([]byte("a,b\nNA,x\n  ,y\nnull,z\nvalue,#N/A\n"))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	a := tbl.Columns[0].Values
	for i, want := range []bool{false, false, false, true} {
		if a[i].Valid != want {
			t.Errorf("a[%d].Valid = %v, want %v", i, a[i].Valid, want)
		}
	}
	if tbl.Columns[1].Values[3].Valid {
		t.Error("#N/A should be missing")
	}
}

func TestParseTable_InfersKinds(t *testing.T) {
	tbl, err := ParseTable([]byte("i,f,b,s,e\n1,1.5,true,x,\n-2,3,FALSE,y,\n"))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	want := []Kind{KindInt, KindFloat, KindBool, KindText, KindText}
	for i, c := range tbl.Columns {
		if c.Kind != want[i] {
			t.Errorf("column %q kind = %v, want %v", c.Name, c.Kind, want[i])
		}
	}
}
