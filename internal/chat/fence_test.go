package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(f *fenceFilter, chunks ...string) []segment {
	var out []segment
	for _, c := range chunks {
		out = append(out, f.write(c)...)
	}
	return append(out, f.flush()...)
}

func TestFenceFilter(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []segment
	}{
		{
			name:   "plain",
			chunks: []string{"hello ", "world"},
			want:   []segment{{text: "hello "}, {text: "world"}},
		},
		{
			name:   "backticks split across chunks",
			chunks: []string{"a`", "``json\n{}\n`", "``b"},
			want:   []segment{{text: "a"}, {block: true, text: "```json\n{}\n```"}, {text: "b"}},
		},
		{
			name:   "non-json fence released whole",
			chunks: []string{"x ```go\nfmt.Println()\n``` y"},
			want:   []segment{{text: "x ```go\nfmt.Println()\n``` y"}},
		},
		{
			name:   "inline code is released",
			chunks: []string{"use `code` here"},
			want:   []segment{{text: "use `code` here"}},
		},
		{
			name:   "trailing backtick flushed",
			chunks: []string{"end`"},
			want:   []segment{{text: "end"}, {text: "`"}},
		},
		{
			name:   "two blocks in one chunk",
			chunks: []string{"```json\n1\n``````json\n2\n```"},
			want:   []segment{{block: true, text: "```json\n1\n```"}, {block: true, text: "```json\n2\n```"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(&fenceFilter{}, tt.chunks...))
		})
	}
}

func TestPartialFence(t *testing.T) {
	assert.Equal(t, 0, partialFence("abc"))
	assert.Equal(t, 1, partialFence("abc`"))
	assert.Equal(t, 2, partialFence("abc``"))
	assert.Equal(t, 0, partialFence(""))
}
