// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"vvimage/internal/testutil"
)

const validRow = "ずんだもん,1345,1345,3000,名詞,固有名詞,一般,*,*,*,ずんだもん,ズンダモン,ズンダモン,0/5,C1"

func TestParseCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		want     int
		wantErr  string
		wantLine int
	}{
		{name: "empty", input: "", want: 0},
		{name: "single row", input: validRow + "\n", want: 1},
		{name: "bom and blank lines", input: "\ufeff" + validRow + "\n\n" + validRow + "\n", want: 2},
		{name: "no trailing newline", input: validRow, want: 1},
		{name: "quoted field", input: `"カンマ,入り",1,1,100,名詞,一般,*,*,*,*,カンマ,カンマ,カンマ` + "\n", want: 1},
		{name: "too few columns", input: validRow + "\nfoo,1,1,1\n", wantErr: "at least 13 columns", wantLine: 2},
		{name: "empty surface", input: ",1,1,1,a,b,c,d,e,f,g,h,i\n", wantErr: "surface form is empty", wantLine: 1},
		{name: "non-integer cost", input: "x,1,1,high,a,b,c,d,e,f,g,h,i\n", wantErr: `cost "high"`, wantLine: 1},
		{name: "non-integer left id", input: "x,L,1,1,a,b,c,d,e,f,g,h,i\n", wantErr: "left id", wantLine: 1},
		{name: "broken quote", input: "\"x,1,1,1,a,b,c,d,e,f,g,h,i\n", wantErr: "quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entries, err := ParseCSV(strings.NewReader(tt.input), "overlay.csv")
			if tt.wantErr != "" {
				if !errors.Is(err, ErrDictionary) {
					t.Fatalf("ParseCSV() error = %v, want ErrDictionary", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("ParseCSV() error = %v, want %q", err, tt.wantErr)
				}
				var de *DictionaryError
				if tt.wantLine > 0 && (!errors.As(err, &de) || de.Line != tt.wantLine) {
					t.Errorf("line = %+v, want %d", de, tt.wantLine)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("ParseCSV() = %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestReadOverlays(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	empty := filepath.Join(dir, "empty.csv")
	testutil.MustWriteFile(t, a, []byte(validRow+"\n"), 0o644)
	testutil.MustWriteFile(t, b, []byte(strings.Replace(validRow, "ずんだもん", "めたん", 1)+"\n"), 0o644)
	testutil.MustWriteFile(t, empty, nil, 0o644)

	entries, err := ReadOverlays([]string{a, empty, filepath.Join(dir, "absent.csv"), b})
	if err != nil {
		t.Fatalf("ReadOverlays() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Surface() != "ずんだもん" || entries[1].Surface() != "めたん" {
		t.Errorf("ReadOverlays() = %v", entries)
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := `"カンマ,入り",1,1,100,名詞,一般,*,*,*,*,カンマ,カンマ,カンマ` + "\n" + validRow + "\n"
	entries, err := ParseCSV(strings.NewReader(in), "in.csv")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		t.Fatal(err)
	}
	if buf.String() != in {
		t.Errorf("WriteCSV() = %q, want %q", buf.String(), in)
	}
}
