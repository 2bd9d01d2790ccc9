package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat_OrderAndHeadings(t *testing.T) {
	cols := DefaultCollections()
	results := []CollectionResult{
		{Collection: cols[0], Records: []Record{{ID: "k1", Title: "Bio", Body: "20 years in IT."}}},
		{Collection: cols[1], Records: []Record{{ID: "e1", Title: "PMO", Body: "Portfolio governance."}, {ID: "e2", Body: "Untitled note."}}},
		{Collection: cols[2], Err: errors.New("timeout")},
		{Collection: cols[3], Records: nil},
	}

	doc := Format("Baptiste Leroux - Alpa Stratégie", results)

	expected := "# Baptiste Leroux - Alpa Stratégie\n" +
		"\n## About Baptiste & Alpa Stratégie\n\n" +
		"### Bio\n20 years in IT.\n\n" +
		"\n## Expertise & Services\n\n" +
		"### PMO\nPortfolio governance.\n\n" +
		"Untitled note.\n\n"
	assert.Equal(t, expected, doc)
}

func TestFormat_Deterministic(t *testing.T) {
	cols := DefaultCollections()
	results := []CollectionResult{
		{Collection: cols[0], Records: []Record{{Title: "A", Body: "a"}}},
		{Collection: cols[3], Records: []Record{{Title: "Q", Body: "q"}}},
	}
	assert.Equal(t, Format("T", results), Format("T", results))
}

func TestDefaultCollectionsOrder(t *testing.T) {
	var ids []string
	for _, c := range DefaultCollections() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"knowledge", "expertise", "missions", "faqs"}, ids)
}

func TestIsSparse(t *testing.T) {
	assert.True(t, IsSparse("# Title\n"))
	assert.False(t, IsSparse(FallbackDocument))
}

func TestIsSparse_CountsCharacters(t *testing.T) {
	// 150 characters, 300 bytes.
	accented := strings.Repeat("é", 150)
	assert.True(t, IsSparse(accented))
	assert.False(t, IsSparse(strings.Repeat("é", MinDocumentLength)))
}
