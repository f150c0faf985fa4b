package sanitize

import "testing"

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Is the <b>hybrid</b> available?", "Is the hybrid available?"},
		{"<script>alert(1)</script>call me today", "alert(1)call me today"},
		{"&lt;img src=x&gt; need a quote", "need a quote"},
		{"  plain text  ", "plain text"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Text(tc.in); got != tc.want {
			t.Fatalf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
