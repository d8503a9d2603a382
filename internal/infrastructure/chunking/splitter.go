package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// sizeBounds are per-section character bounds. Abstracts are short and
// dense, so they get small chunks; methods and results carry long
// procedural passages; table chunks keep whole tables together even when
// they are tiny or large.
type sizeBounds struct {
	min int
	max int
}

var sectionBounds = map[domain.Section]sizeBounds{
	domain.SectionAbstract:   {min: 500, max: 800},
	domain.SectionMethods:    {min: 1000, max: 1500},
	domain.SectionResults:    {min: 1000, max: 1500},
	domain.SectionDiscussion: {min: 800, max: 1200},
	domain.SectionTables:     {min: 200, max: 2000},
	domain.SectionFullText:   {min: 1000, max: 1500},
}

// headingRules map paper headings to section labels, checked in order.
// Headings the classifier does not care about (introduction, references)
// fall through to full_text via the segment they open.
var headingRules = []struct {
	pattern *regexp.Regexp
	section domain.Section
}{
	{regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?(abstract|summary)\b`), domain.SectionAbstract},
	{regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?((materials?\s+and\s+)?methods?|methodology|study\s+design)\b`), domain.SectionMethods},
	{regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?(results?|findings)\b`), domain.SectionResults},
	{regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?(discussion|conclusions?|limitations)\b`), domain.SectionDiscussion},
	{regexp.MustCompile(`(?i)^table\s+\d+`), domain.SectionTables},
	{regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?(introduction|background|references|acknowledg\w*|funding|appendix)\b`), domain.SectionFullText},
}

// Headings are short lines; anything longer is prose that happens to
// start with a section word.
const maxHeadingLen = 60

var (
	paragraphSplit = regexp.MustCompile(`\n{2,}`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// SectionSplitter cuts paper text into section-labeled, size-bounded
// chunks with ordinals assigned in document order. Splitting is pure
// string work with no randomness: the same text always yields the same
// chunks, which is what makes re-chunking safe to skip upstream.
type SectionSplitter struct{}

func NewSectionSplitter() *SectionSplitter {
	return &SectionSplitter{}
}

func (s *SectionSplitter) Split(fingerprint, text string) []domain.Chunk {
	var chunks []domain.Chunk
	ordinal := 0
	for _, seg := range segment(text) {
		for _, piece := range splitSegment(seg.text, sectionBounds[seg.section]) {
			chunks = append(chunks, domain.Chunk{
				DocumentFingerprint: fingerprint,
				Ordinal:             ordinal,
				Section:             seg.section,
				Text:                piece,
				CharCount:           utf8.RuneCountInString(piece),
			})
			ordinal++
		}
	}
	return chunks
}

type textSegment struct {
	section domain.Section
	text    string
}

// segment walks the text line by line, opening a new segment at each
// recognized heading. Text before the first heading is full_text.
func segment(text string) []textSegment {
	var segments []textSegment
	current := domain.SectionFullText
	var buf strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
			segments = append(segments, textSegment{section: current, text: trimmed})
		}
		buf.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if section, ok := classifyHeading(line); ok {
			flush()
			current = section
			if current == domain.SectionTables {
				// The "Table N" line is the table's caption, keep it.
				buf.WriteString(line)
				buf.WriteString("\n")
			}
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return segments
}

func classifyHeading(line string) (domain.Section, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxHeadingLen {
		return "", false
	}
	for _, rule := range headingRules {
		if rule.pattern.MatchString(trimmed) {
			return rule.section, true
		}
	}
	return "", false
}

// splitSegment packs paragraphs into chunks within bounds. A paragraph
// that alone exceeds the ceiling is broken at sentence boundaries. A
// short trailing remainder is folded into the previous chunk when that
// does not push it past the ceiling.
func splitSegment(text string, b sizeBounds) []string {
	var pieces []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}
	add := func(part string) {
		if buf.Len() > 0 && buf.Len()+len(part)+1 > b.max {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(part)
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= b.max {
			add(para)
			continue
		}
		for _, sentence := range splitLong(para, b.max) {
			add(sentence)
		}
	}
	flush()

	// Fold an undersized tail into its predecessor where possible.
	if n := len(pieces); n > 1 && len(pieces[n-1]) < b.min {
		merged := pieces[n-2] + "\n" + pieces[n-1]
		if len(merged) <= b.max {
			pieces = append(pieces[:n-2], merged)
		}
	}
	return pieces
}

// splitLong breaks an oversized paragraph at sentence ends, falling back
// to a hard cut for a single run with no boundaries at all.
func splitLong(text string, max int) []string {
	var parts []string
	var buf strings.Builder

	grow := func(chunk string) {
		if buf.Len() > 0 && buf.Len()+len(chunk) > max {
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		buf.WriteString(chunk)
	}

	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		grow(text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		grow(text[last:])
	}
	if buf.Len() > 0 {
		parts = append(parts, strings.TrimSpace(buf.String()))
	}

	// No sentence boundaries: hard-cut on rune positions.
	var out []string
	for _, part := range parts {
		out = append(out, hardCut(part, max)...)
	}
	return out
}

func hardCut(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += max {
		end := min(start+max, len(runes))
		out = append(out, strings.TrimSpace(string(runes[start:end])))
	}
	return out
}
