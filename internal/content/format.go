package content

import (
	"strings"
	"unicode/utf8"
)

// MinDocumentLength is the size in characters below which a formatted knowledge base is
// considered too sparse to index and the fallback document is used instead.
const MinDocumentLength = 200

// Format renders the collections in the order given. Failed or empty
// collections contribute nothing.
func Format(title string, results []CollectionResult) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")

	for _, r := range results {
		if r.Failed() {
			continue
		}
		b.WriteString(formatRecords(r.Records, r.Collection.Label))
	}

	return b.String()
}

func formatRecords(records []Record, label string) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n## ")
	b.WriteString(label)
	b.WriteString("\n\n")

	for _, rec := range records {
		if rec.Title != "" {
			b.WriteString("### ")
			b.WriteString(rec.Title)
			b.WriteString("\n")
		}
		if rec.Body != "" {
			b.WriteString(rec.Body)
			b.WriteString("\n\n")
		}
	}

	return b.String()
}

// IsSparse reports whether doc is too small to be a useful knowledge base.
func IsSparse(doc string) bool {
	return utf8.RuneCountInString(doc) < MinDocumentLength
}
