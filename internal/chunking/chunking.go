// Package chunking splits large requirement documents into segments an LLM
// call can absorb and merges the per-segment extraction results.
package chunking

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// DefaultMaxTokens is the per-chunk token budget.
const DefaultMaxTokens = 3000

// charsPerToken is the rough characters-per-token ratio used everywhere.
const charsPerToken = 4

// Strategy names how a document is split.
type Strategy string

const (
	StrategyAuto      Strategy = "auto"
	StrategySingle    Strategy = "single"
	StrategySection   Strategy = "section"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
)

// ParseStrategy maps a name to a Strategy. Unknown or empty names are auto.
func ParseStrategy(name string) Strategy {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategySection, StrategyParagraph, StrategySentence:
		return s
	}
	return StrategyAuto
}

// Chunk is one contiguous slice of a document. Sentence chunks may overlap
// their predecessor by one or two sentences.
type Chunk struct {
	ID              int      `json:"chunk_id"`
	Text            string   `json:"text"`
	CharCount       int      `json:"char_count"`
	EstimatedTokens int      `json:"estimated_tokens"`
	Strategy        Strategy `json:"strategy"`
}

var (
	headerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^#{1,3}\s+.+$`),
		regexp.MustCompile(`(?m)^\d+\.\s+[A-Z].+$`),
		regexp.MustCompile(`(?m)^[A-Z][A-Z \t]+:`),
	}
	headerLine     = regexp.MustCompile(`^(?:#{1,3}\s+.+|\d+\.\s+[A-Z].+|[A-Z][A-Z \t]+:.*)$`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// Chunker splits documents. The zero value uses DefaultMaxTokens.
type Chunker struct {
	MaxTokens int
}

// New returns a Chunker for maxTokens; non-positive values select
// DefaultMaxTokens.
func New(maxTokens int) *Chunker {
	return &Chunker{MaxTokens: maxTokens}
}

// MaxChars is the character budget of one chunk.
func (c *Chunker) MaxChars() int {
	if c == nil || c.MaxTokens <= 0 {
		return DefaultMaxTokens * charsPerToken
	}
	return c.MaxTokens * charsPerToken
}

// Chunk splits text with strategy. With StrategyAuto, text that fits one
// chunk is returned whole; otherwise the strategy is detected from the
// document structure. The result is never empty.
func (c *Chunker) Chunk(text string, strategy Strategy) []Chunk {
	if strategy == "" {
		strategy = StrategyAuto
	}
	if strategy == StrategyAuto {
		if len(text) <= c.MaxChars() {
			return []Chunk{newChunk(0, text, StrategySingle)}
		}
		strategy = DetectStrategy(text)
	}

	var parts []string
	switch strategy {
	case StrategySection:
		parts = c.accumulate(sections(text))
	case StrategyParagraph:
		parts = c.accumulate(paragraphs(text))
	default:
		strategy = StrategySentence
		parts = c.sentenceWindows(sentences(text))
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, newChunk(len(chunks), p, strategy))
	}
	if len(chunks) == 0 {
		return []Chunk{newChunk(0, text, strategy)}
	}
	return chunks
}

func newChunk(id int, text string, strategy Strategy) Chunk {
	text = strings.TrimSpace(text)
	return Chunk{
		ID:              id,
		Text:            text,
		CharCount:       len(text),
		EstimatedTokens: len(text) / charsPerToken,
		Strategy:        strategy,
	}
}

// DetectStrategy picks section splitting when the text has at least three
// headers, paragraph splitting when it has at least five paragraphs, and
// sentence splitting otherwise.
func DetectStrategy(text string) Strategy {
	if CountHeaders(text) >= 3 {
		return StrategySection
	}
	if len(paragraphs(text)) >= 5 {
		return StrategyParagraph
	}
	return StrategySentence
}

// CountHeaders counts markdown, numbered and ALL-CAPS section headers.
func CountHeaders(text string) int {
	n := 0
	for _, re := range headerPatterns {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

// sections splits text before every header line; each unit is a header
// with the body that follows it.
func sections(text string) []string {
	var units []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if headerLine.MatchString(line) && strings.TrimSpace(cur.String()) != "" {
			units = append(units, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		units = append(units, s)
	}
	return units
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplit.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// keep the terminator with its sentence
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// accumulate greedily joins units with blank lines until the next unit
// would exceed MaxChars. A single oversized unit becomes its own chunk.
func (c *Chunker) accumulate(units []string) []string {
	limit := c.MaxChars()
	var out []string
	cur := ""
	for _, u := range units {
		candidate := u
		if cur != "" {
			candidate = cur + "\n\n" + u
		}
		if len(candidate) > limit && cur != "" {
			out = append(out, cur)
			cur = u
			continue
		}
		cur = candidate
	}
	if strings.TrimSpace(cur) != "" {
		out = append(out, cur)
	}
	return out
}

// sentenceWindows joins sentences up to MaxChars. When a sentence overflows
// the window, the window minus that sentence is emitted and the next one
// starts with the overflowing sentence, preceded by the previous sentence
// when the window held more than two.
func (c *Chunker) sentenceWindows(sents []string) []string {
	limit := c.MaxChars()
	var out []string
	var window []string
	for _, s := range sents {
		window = append(window, s)
		if len(window) > 1 && len(strings.Join(window, " ")) > limit {
			out = append(out, strings.Join(window[:len(window)-1], " "))
			if len(window) > 2 {
				window = append([]string(nil), window[len(window)-2:]...)
			} else {
				window = append([]string(nil), window[len(window)-1:]...)
			}
		}
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, " "))
	}
	return out
}

// Merge concatenates per-chunk results in chunk order, dropping any use case
// whose lowercase trimmed title appeared earlier. The first occurrence wins.
func Merge(results [][]usecase.UseCase) []usecase.UseCase {
	out := []usecase.UseCase{}
	seen := make(map[string]struct{})
	for _, chunk := range results {
		for _, uc := range chunk {
			key := strings.ToLower(strings.TrimSpace(uc.Title))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, uc)
		}
	}
	return out
}
