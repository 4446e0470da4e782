package app

import "testing"

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold",
			in:   "**aibo**",
			want: "<strong>aibo</strong>",
		},
		{
			name: "inline code",
			in:   "run `!help` for commands",
			want: "run <code>!help</code> for commands",
		},
		{
			name: "newlines",
			in:   "line one\nline two",
			want: "line one<br/>line two",
		},
		{
			name: "code block escapes html",
			in:   "```\na < b && c > d\n```",
			want: "<pre><code>a &lt; b &amp;&amp; c &gt; d\n</code></pre>",
		},
		{
			name: "unmatched bold left alone",
			in:   "**oops",
			want: "**oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markdownToHTML(tt.in); got != tt.want {
				t.Errorf("markdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChatTrigger(t *testing.T) {
	tests := []struct {
		in       string
		wantText string
		wantOK   bool
	}{
		{".hello there", "hello there", true},
		{".x", "x", true},
		{".", "", false},
		{"hello", "", false},
		{"!help", "", false},
		{"..double", ".double", true},
	}

	for _, tt := range tests {
		got, ok := chatTrigger(tt.in)
		if ok != tt.wantOK || got != tt.wantText {
			t.Errorf("chatTrigger(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.wantText, tt.wantOK)
		}
	}
}
