// Package segmenter cuts arbitrary text into chunks small enough for one synthesis request.
package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/petrzlen/narrator/pkg/models"
)

// MaxChunkChars is the largest input the synthesis services accept per request.
const MaxChunkChars = 2000

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	// Greedy "non-terminator run + terminator run", e.g. `Hello there?!`
	sentenceUnit = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// Segment splits text into ordered chunks of at most maxChars characters (runes).
// Paragraphs are preferred boundaries, then sentences, and only a single sentence
// longer than maxChars gets hard-split without regard for words.
func Segment(text string, maxChars int) []models.TextChunk {
	if maxChars <= 0 {
		maxChars = MaxChunkChars
	}

	var pieces []string
	for _, paragraph := range paragraphBreak.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		if runeLen(paragraph) <= maxChars {
			pieces = append(pieces, paragraph)
			continue
		}
		pieces = append(pieces, splitParagraph(paragraph, maxChars)...)
	}

	chunks := make([]models.TextChunk, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, models.TextChunk{Index: len(chunks), Text: piece})
	}
	return chunks
}

func splitParagraph(paragraph string, maxChars int) (result []string) {
	var buffer strings.Builder
	bufferLen := 0

	flush := func() {
		if bufferLen > 0 {
			result = append(result, buffer.String())
		}
		buffer.Reset()
		bufferLen = 0
	}

	for _, sentence := range sentences(paragraph) {
		sentenceLen := runeLen(sentence)
		if bufferLen+sentenceLen <= maxChars {
			buffer.WriteString(sentence)
			bufferLen += sentenceLen
			continue
		}

		flush()
		if sentenceLen > maxChars {
			result = append(result, hardSplit(sentence, maxChars)...)
			continue
		}
		buffer.WriteString(sentence)
		bufferLen = sentenceLen
	}
	flush()
	return
}

// sentences returns the sentence units of paragraph, their concatenation equals paragraph.
// Trailing text without a terminator is kept as the last unit.
func sentences(paragraph string) []string {
	locs := sentenceUnit.FindAllStringIndex(paragraph, -1)
	if len(locs) == 0 {
		return []string{paragraph}
	}

	units := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		// Matches are contiguous except for leading terminators, e.g. "...Hi." starts with a gap.
		units = append(units, paragraph[end:loc[1]])
		end = loc[1]
	}
	if end < len(paragraph) {
		units = append(units, paragraph[end:])
	}
	return units
}

func hardSplit(s string, maxChars int) []string {
	var slices []string
	for len(s) > 0 {
		cut := len(s)
		count := 0
		for i := range s {
			if count == maxChars {
				cut = i
				break
			}
			count++
		}
		slices = append(slices, s[:cut])
		s = s[cut:]
	}
	return slices
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
