package document

import "strings"

// defaultSeparators is ordered from coarsest to finest: paragraph breaks,
// line breaks, sentence ends, words, and finally single characters.
var defaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Splitter splits text recursively on a separator hierarchy, preferring
// to break at paragraph boundaries and falling back to finer separators
// only when a piece still exceeds the chunk size. Consecutive chunks
// share up to Overlap characters of trailing context.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter returns a splitter producing chunks of at most chunkSize
// characters with chunkOverlap characters of shared context. Invalid
// parameters fall back to 1000/200.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 200
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 5
		}
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split breaks text into overlapping chunks. Whitespace-only input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, separator)

	var chunks []string
	var fitting []string
	for _, piece := range splits {
		if runeLen(piece) <= s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting)...)
			fitting = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, s.hardSplit(piece)...)
		} else {
			chunks = append(chunks, s.split(piece, remaining)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting)...)
	}
	return chunks
}

// merge greedily packs pieces into chunks up to chunkSize, retaining
// trailing pieces totalling at most chunkOverlap as the start of the
// next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			if chunk := joinPieces(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > s.chunkOverlap || total+n > s.chunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}

	if chunk := joinPieces(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// hardSplit cuts a piece with no usable separators at fixed rune offsets.
func (s *Splitter) hardSplit(piece string) []string {
	runes := []rune(piece)
	step := s.chunkSize - s.chunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// splitKeepSeparator splits text on separator, keeping the separator
// attached to the end of each preceding piece so joins are lossless.
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		return []string{text}
	}
	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += separator
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return len([]rune(s))
}
