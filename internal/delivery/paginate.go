package delivery

import "strings"

// fenceMargin reserves room in each segment for a synthetic closing or
// reopening code fence.
const fenceMargin = 8

// paginate splits rendered text into segments of at most capacity
// runes. Cuts prefer line boundaries in the second half of the window,
// and never break a code fence: a fence left open at a cut is closed at
// the segment end and reopened at the start of the next segment.
func paginate(text string, capacity int) []string {
	if capacity <= fenceMargin {
		capacity = fenceMargin + 1
	}
	if len([]rune(text)) <= capacity {
		return []string{text}
	}

	window := capacity - fenceMargin
	var segments []string
	reopen := ""
	remaining := text

	for {
		current := reopen + remaining
		runes := []rune(current)
		if len(runes) <= capacity {
			segments = append(segments, current)
			return segments
		}

		cut := window
		skipNewline := false
		for i := window - 1; i > window/2; i-- {
			if runes[i] == '\n' {
				cut = i
				skipNewline = true
				break
			}
		}

		if !skipNewline {
			// Never split an escape sequence across segments.
			for cut > 1 && runes[cut-1] == '\\' {
				cut--
			}
		}

		segment := string(runes[:cut])
		if skipNewline {
			remaining = string(runes[cut+1:])
		} else {
			remaining = string(runes[cut:])
		}

		if fenceOpen(segment) {
			segment += "\n```"
			reopen = "```\n"
		} else {
			reopen = ""
		}
		segments = append(segments, segment)
	}
}

// fenceOpen reports whether s ends inside a ``` block.
func fenceOpen(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
