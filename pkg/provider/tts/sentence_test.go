package tts

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple sentences",
			in:   "Hello there. How are you? Fine!",
			want: []string{"Hello there.", "How are you?", "Fine!"},
		},
		{
			name: "semicolon boundary",
			in:   "First part; second part.",
			want: []string{"First part;", "second part."},
		},
		{
			name: "trailing text without terminator",
			in:   "Complete sentence. and a dangling tail",
			want: []string{"Complete sentence.", "and a dangling tail"},
		},
		{
			name: "terminator runs stay together",
			in:   "Really?! Yes...",
			want: []string{"Really?!", "Yes..."},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
		{
			name: "whitespace only",
			in:   "   \n\t ",
			want: nil,
		},
		{
			name: "single unterminated phrase",
			in:   "just one phrase",
			want: []string{"just one phrase"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSentences(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestChunkDuration(t *testing.T) {
	c := Chunk{Samples: make([]int16, 16000), SampleRate: 16000}
	if d := c.Duration(); d != 1.0 {
		t.Errorf("Duration = %v, want 1.0", d)
	}
	if d := (Chunk{}).Duration(); d != 0 {
		t.Errorf("zero Chunk Duration = %v, want 0", d)
	}
}

func TestAbort(t *testing.T) {
	var a Abort
	if a.Aborted() {
		t.Error("fresh Abort already aborted")
	}
	a.Abort()
	a.Abort() // idempotent
	if !a.Aborted() {
		t.Error("Aborted() = false after Abort()")
	}
	if a.Err() != nil {
		t.Errorf("Err = %v, want nil", a.Err())
	}
}
