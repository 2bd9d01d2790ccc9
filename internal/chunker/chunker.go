// Package chunker splits the formatted knowledge document into bounded,
// overlapping, line-aligned chunks ready for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alpa-strategie/aia-backend/pkg/utils"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// overlapCharsPerWord converts the overlap budget into a word count.
	overlapCharsPerWord = 5
)

type IDScheme string

const (
	// SequentialIDs numbers chunks chunk-0, chunk-1, ... within a run.
	SequentialIDs IDScheme = "sequential"
	// ContentIDs derives ids from the chunk text so unchanged chunks keep
	// their id when earlier content shifts.
	ContentIDs IDScheme = "content"
)

type Metadata struct {
	Source   string
	Category string
	// Section is the "## " heading in effect where the chunk's own content
	// begins, or the first one inside it when the chunk precedes any heading.
	Section string
}

type Chunk struct {
	ID       string
	Index    int
	Text     string
	Metadata Metadata
}

// VectorMetadata is the metadata persisted alongside the chunk's vector. The
// text is always included so search can return it without a second lookup.
func (c Chunk) VectorMetadata() map[string]string {
	return map[string]string{
		"text":     c.Text,
		"source":   c.Metadata.Source,
		"category": c.Metadata.Category,
		"section":  c.Metadata.Section,
	}
}

type Chunker struct {
	size             int
	overlap          int
	classifySource   Classifier
	classifyCategory Classifier
	ids              IDScheme
}

type Option func(*Chunker)

func WithSourceClassifier(c Classifier) Option {
	return func(ch *Chunker) {
		if c != nil {
			ch.classifySource = c
		}
	}
}

func WithCategoryClassifier(c Classifier) Option {
	return func(ch *Chunker) {
		if c != nil {
			ch.classifyCategory = c
		}
	}
}

func WithIDScheme(s IDScheme) Option {
	return func(ch *Chunker) {
		ch.ids = s
	}
}

var ErrInvalidSize = errors.New("invalid chunk size")

func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0, got %d", ErrInvalidSize, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be >= 0, got %d", ErrInvalidSize, overlap)
	}

	c := &Chunker{
		size:             size,
		overlap:          overlap,
		classifySource:   DefaultSourceClassifier,
		classifyCategory: DefaultCategoryClassifier,
		ids:              SequentialIDs,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch c.ids {
	case SequentialIDs, ContentIDs:
	default:
		return nil, fmt.Errorf("unknown chunk id scheme %q", c.ids)
	}

	return c, nil
}

// Split walks document line by line. A line joins the current chunk only if
// the chunk stays within the size budget; otherwise the chunk is closed and
// the next one starts with the last overlap/5 words of it followed by the
// line. The seed is shortened from the front when it would push the new
// chunk over budget. Lines are never split, so a single line longer than the
// budget becomes an oversized chunk of its own.
func (c *Chunker) Split(document string) []Chunk {
	document = strings.ReplaceAll(document, "\r\n", "\n")
	if strings.TrimSpace(document) == "" {
		return nil
	}

	var (
		chunks         []Chunk
		current        strings.Builder
		currentLen     int
		section        string
		currentSection string
	)

	start := func(seed, line string) {
		current.Reset()
		currentLen = 0
		if seed != "" {
			current.WriteString(seed)
			current.WriteByte('\n')
			currentLen = utf8.RuneCountInString(seed) + 1
		}
		current.WriteString(line)
		currentLen += utf8.RuneCountInString(line)
		currentSection = section
	}

	for _, line := range strings.Split(document, "\n") {
		if heading, ok := sectionHeading(line); ok {
			section = heading
		}
		lineLen := utf8.RuneCountInString(line)

		switch {
		case currentLen == 0:
			start("", line)
		case currentLen+1+lineLen > c.size:
			closed := current.String()
			chunks = c.appendChunk(chunks, closed, currentSection)
			start(c.overlapTail(closed, c.size-1-lineLen), line)
		default:
			if currentSection == "" {
				currentSection = section
			}
			current.WriteByte('\n')
			current.WriteString(line)
			currentLen += 1 + lineLen
		}
	}

	chunks = c.appendChunk(chunks, current.String(), currentSection)
	c.assignIDs(chunks)
	return chunks
}

func (c *Chunker) appendChunk(chunks []Chunk, raw, section string) []Chunk {
	text := strings.TrimSpace(raw)
	if text == "" {
		return chunks
	}
	return append(chunks, Chunk{
		Index: len(chunks),
		Text:  text,
		Metadata: Metadata{
			Source:   c.classifySource(raw),
			Category: c.classifyCategory(raw),
			Section:  section,
		},
	})
}

// overlapTail returns up to overlap/5 trailing words of closed whose joined
// length fits in budget.
func (c *Chunker) overlapTail(closed string, budget int) string {
	n := c.overlap / overlapCharsPerWord
	if n <= 0 || budget <= 0 {
		return ""
	}
	words := strings.Fields(closed)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	for len(words) > 0 {
		tail := strings.Join(words, " ")
		if utf8.RuneCountInString(tail) <= budget {
			return tail
		}
		words = words[1:]
	}
	return ""
}

func (c *Chunker) assignIDs(chunks []Chunk) {
	switch c.ids {
	case ContentIDs:
		seen := make(map[string]int, len(chunks))
		for i := range chunks {
			id := "chunk-" + utils.HashString(chunks[i].Text)[:16]
			if n := seen[id]; n > 0 {
				seen[id] = n + 1
				id = fmt.Sprintf("%s-%d", id, n)
			} else {
				seen[id] = 1
			}
			chunks[i].ID = id
		}
	default:
		for i := range chunks {
			chunks[i].ID = fmt.Sprintf("chunk-%d", i)
		}
	}
}

func sectionHeading(line string) (string, bool) {
	if !strings.HasPrefix(line, "## ") {
		return "", false
	}
	return strings.TrimSpace(line[3:]), true
}
