package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestChunk_SingleWhenSmall(t *testing.T) {
	text := "User can login. User can search products."
	chunks := New(0).Chunk(text, StrategyAuto)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{
		ID:              0,
		Text:            text,
		CharCount:       len(text),
		EstimatedTokens: len(text) / 4,
		Strategy:        StrategySingle,
	}, chunks[0])
}

func TestChunk_EmptyText(t *testing.T) {
	chunks := New(0).Chunk("", "")
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Text)
}

func TestDetectStrategy(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Strategy
	}{
		{name: "markdown headers", text: "# One\nx\n## Two\ny\n### Three\nz", want: StrategySection},
		{name: "numbered headers", text: "1. Login\nx\n2. Search\ny\n3. Checkout\nz", want: StrategySection},
		{name: "caps headers", text: "LOGIN: x\nSEARCH: y\nCHECKOUT: z", want: StrategySection},
		{name: "paragraphs", text: "a\n\nb\n\nc\n\nd\n\ne", want: StrategyParagraph},
		{name: "prose", text: "One sentence. Another sentence.\n\nA second paragraph.", want: StrategySentence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStrategy(tt.text))
		})
	}
}

func TestChunk_Sections(t *testing.T) {
	text := "# Login\nUser logs in.\n# Search\nUser searches.\n# Cart\nUser adds items."
	chunks := New(10).Chunk(text, StrategyAuto)

	assert.Equal(t, []string{
		"# Login\nUser logs in.",
		"# Search\nUser searches.",
		"# Cart\nUser adds items.",
	}, texts(chunks))
	for i, c := range chunks {
		assert.Equal(t, i, c.ID)
		assert.Equal(t, StrategySection, c.Strategy)
	}
}

func TestChunk_SectionsAccumulate(t *testing.T) {
	text := "# A\nx\n# B\ny\n# C\nz"
	chunks := New(100).Chunk(text, StrategySection)
	assert.Equal(t, []string{"# A\nx\n\n# B\ny\n\n# C\nz"}, texts(chunks))
}

func TestChunk_Paragraphs(t *testing.T) {
	paras := []string{
		strings.Repeat("a", 20),
		strings.Repeat("b", 20),
		strings.Repeat("c", 20),
		strings.Repeat("d", 20),
		strings.Repeat("e", 20),
	}
	chunks := (&Chunker{MaxTokens: 12}).Chunk(strings.Join(paras, "\n\n"), StrategyAuto)

	assert.Equal(t, []string{
		paras[0] + "\n\n" + paras[1],
		paras[2] + "\n\n" + paras[3],
		paras[4],
	}, texts(chunks))
	assert.Equal(t, StrategyParagraph, chunks[0].Strategy)
}

func TestChunk_SentencesOverlap(t *testing.T) {
	text := "Alpha one. Bravo two. Charlie three. Delta four. Echo five."
	chunks := New(10).Chunk(text, StrategyAuto)

	assert.Equal(t, []string{
		"Alpha one. Bravo two. Charlie three.",
		"Charlie three. Delta four. Echo five.",
	}, texts(chunks))
	assert.Equal(t, StrategySentence, chunks[1].Strategy)
	assert.Equal(t, len(chunks[1].Text), chunks[1].CharCount)
	assert.Equal(t, len(chunks[1].Text)/4, chunks[1].EstimatedTokens)
}

func TestChunk_SentencesTwoWindowNoOverlap(t *testing.T) {
	long := strings.Repeat("w", 30) + "."
	chunks := New(10).Chunk(long+" "+long, StrategySentence)
	assert.Equal(t, []string{long, long}, texts(chunks))
}

func TestChunk_CoversAllText(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("The customer can browse the catalog and add items to the basket. ")
	}
	text := b.String()
	c := New(500)
	chunks := c.Chunk(text, StrategyAuto)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.CharCount, c.MaxChars())
		assert.Contains(t, text, ch.Text[:40])
	}
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategySection, ParseStrategy("Section"))
	assert.Equal(t, StrategyParagraph, ParseStrategy("paragraph"))
	assert.Equal(t, StrategySentence, ParseStrategy(" sentence "))
	assert.Equal(t, StrategyAuto, ParseStrategy(""))
	assert.Equal(t, StrategyAuto, ParseStrategy("words"))
}

func TestMerge(t *testing.T) {
	results := [][]usecase.UseCase{
		{{Title: "Login"}, {Title: "Search"}},
		{{Title: "login"}, {Title: "Checkout"}},
		{{Title: "  SEARCH "}},
	}
	merged := Merge(results)

	require.Len(t, merged, 3)
	assert.Equal(t, "Login", merged[0].Title)
	assert.Equal(t, "Search", merged[1].Title)
	assert.Equal(t, "Checkout", merged[2].Title)

	assert.NotNil(t, Merge(nil))
}
