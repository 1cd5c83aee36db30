// Package chunk splits extracted document text into overlapping,
// paragraph-aware segments sized for embedding and context-window
// budgets. Chunks are the unit of embedding and retrieval.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Default splitting parameters. Roughly 1100 characters keeps a chunk
// comfortably below the embedding model's token limit while preserving
// enough surrounding text to be retrievable on its own.
const (
	DefaultSize    = 1100
	DefaultOverlap = 200

	// MinLength is the smallest trimmed chunk worth keeping. Anything
	// shorter carries no retrievable signal.
	MinLength = 10
)

// Options configures Split. The zero value selects the defaults.
type Options struct {
	Size    int // maximum chunk length in runes
	Overlap int // overlap in runes between adjacent slices of an oversized paragraph
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = DefaultOverlap
		if o.Overlap >= o.Size {
			o.Overlap = o.Size / 4
		}
	}
	return o
}

// Split divides text into trimmed, non-empty chunks.
//
// Paragraphs (blank-line separated) are greedily accumulated until
// adding the next one would exceed Size, at which point the buffer is
// flushed. A single paragraph longer than Size is sliced into fixed
// windows advancing Size-Overlap per step, so adjacent slices share
// Overlap characters of local context. A paragraph exactly equal to
// Size stays whole.
//
// Empty or whitespace-only input yields an empty slice, not an error.
func Split(text string, opts Options) []string {
	opts = opts.withDefaults()

	paragraphs := splitParagraphs(normalize(text))
	if len(paragraphs) == 0 {
		return nil
	}

	var (
		chunks   []string
		buf      strings.Builder
		bufRunes int
	)

	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufRunes = 0
		}
	}

	// Sizes are accounted in runes throughout, matching the rune
	// windows slice() produces.
	for _, para := range paragraphs {
		paraRunes := utf8.RuneCountInString(para)
		if paraRunes > opts.Size {
			// Oversized paragraph: flush what we have, then slice it.
			flush()
			chunks = append(chunks, slice(para, opts.Size, opts.Overlap)...)
			continue
		}

		// +2 accounts for the paragraph separator when the buffer is
		// non-empty.
		extra := paraRunes
		if bufRunes > 0 {
			extra += 2
		}
		if bufRunes+extra > opts.Size {
			flush()
		}
		if bufRunes > 0 {
			buf.WriteString("\n\n")
			bufRunes += 2
		}
		buf.WriteString(para)
		bufRunes += paraRunes
	}
	flush()

	return filterShort(chunks)
}

// normalize unifies line endings and converts tabs to spaces so that
// paragraph detection and size accounting see consistent input.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\t", " ")
}

// splitParagraphs breaks normalized text on blank-line boundaries,
// dropping empty segments.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// slice cuts an oversized paragraph into windows of at most size runes,
// each window starting size-overlap past the previous one. Operating on
// runes avoids splitting a multi-byte character at a window boundary.
func slice(para string, size, overlap int) []string {
	runes := []rune(para)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// filterShort drops chunks whose trimmed rune count is below MinLength.
func filterShort(chunks []string) []string {
	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if utf8.RuneCountInString(c) >= MinLength {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
