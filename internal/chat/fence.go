package chat

import "strings"

const fence = "```"

// segment is a piece of model output: plain text for the client, or a
// complete json fenced block for the extraction parser.
type segment struct {
	block bool
	text  string
}

// fenceFilter splits streamed text into segments. Text that could still turn
// out to be part of a fence is withheld until the fence closes or the stream
// ends.
type fenceFilter struct {
	buf     string
	inFence bool
}

func (f *fenceFilter) write(s string) []segment {
	f.buf += s

	var out []segment
	for {
		if !f.inFence {
			i := strings.Index(f.buf, fence)
			if i < 0 {
				keep := partialFence(f.buf)
				out = appendText(out, f.buf[:len(f.buf)-keep])
				f.buf = f.buf[len(f.buf)-keep:]
				return out
			}
			out = appendText(out, f.buf[:i])
			f.buf = f.buf[i:]
			f.inFence = true
		}

		j := strings.Index(f.buf[len(fence):], fence)
		if j < 0 {
			return out
		}
		end := len(fence) + j + len(fence)
		block := f.buf[:end]
		f.buf = f.buf[end:]
		f.inFence = false

		if strings.HasPrefix(block[len(fence):], "json") {
			out = append(out, segment{block: true, text: block})
		} else {
			out = appendText(out, block)
		}
	}
}

// flush releases whatever is still withheld as text.
func (f *fenceFilter) flush() []segment {
	rest := f.buf
	f.buf = ""
	f.inFence = false
	return appendText(nil, rest)
}

// partialFence returns how many trailing bytes of s could begin a fence.
func partialFence(s string) int {
	for n := len(fence) - 1; n > 0; n-- {
		if strings.HasSuffix(s, fence[:n]) {
			return n
		}
	}
	return 0
}

func appendText(out []segment, s string) []segment {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 && !out[n-1].block {
		out[n-1].text += s
		return out
	}
	return append(out, segment{text: s})
}
