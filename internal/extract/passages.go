package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultPassageChars is the target passage length when none is configured
const DefaultPassageChars = 800

// minPassageChars drops fragments such as menu labels and captions
const minPassageChars = 40

// PassageSplitter packs sentences into passages of at most MaxChars runes.
// Passages never cross a paragraph boundary.
type PassageSplitter struct {
	MaxChars int
}

// NewPassageSplitter creates a splitter; maxChars <= 0 uses the default
func NewPassageSplitter(maxChars int) *PassageSplitter {
	if maxChars <= 0 {
		maxChars = DefaultPassageChars
	}
	return &PassageSplitter{MaxChars: maxChars}
}

// FromHTML extracts the visible text of a page and splits it into passages
func (s *PassageSplitter) FromHTML(htmlContent string) ([]string, error) {
	doc, err := Parse(htmlContent)
	if err != nil {
		return nil, err
	}
	return s.Split(VisibleText(doc)), nil
}

// Split splits plain text into passages. Blank lines and newlines separate
// paragraphs.
func (s *PassageSplitter) Split(text string) []string {
	var passages []string
	for _, para := range strings.Split(text, "\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}

		var current strings.Builder
		flush := func() {
			p := strings.TrimSpace(current.String())
			if utf8.RuneCountInString(p) >= minPassageChars {
				passages = append(passages, p)
			}
			current.Reset()
		}

		for _, sentence := range sentences(para) {
			for _, piece := range s.chop(sentence) {
				if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(piece) > s.MaxChars {
					flush()
				}
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(piece)
			}
		}
		flush()
	}
	return passages
}

// chop breaks a sentence longer than MaxChars on word boundaries
func (s *PassageSplitter) chop(sentence string) []string {
	if utf8.RuneCountInString(sentence) <= s.MaxChars {
		return []string{sentence}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	for _, word := range strings.Fields(sentence) {
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(word) > s.MaxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// sentences splits a paragraph after '.', '!' or '?' followed by whitespace
func sentences(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				if s := strings.TrimSpace(current.String()); s != "" {
					out = append(out, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
