package chunker

import "strings"

// Classifier labels a chunk from its text.
type Classifier func(text string) string

// Rule maps any of its keywords to Label. Matching is a case-sensitive
// substring test.
type Rule struct {
	Label    string
	Keywords []string
}

// Keywords builds a classifier that returns the label of the first rule with a
// matching keyword, or fallback when none match.
func Keywords(fallback string, rules ...Rule) Classifier {
	return func(text string) string {
		for _, r := range rules {
			for _, kw := range r.Keywords {
				if strings.Contains(text, kw) {
					return r.Label
				}
			}
		}
		return fallback
	}
}

const (
	SourceKnowledge = "knowledge"
	SourceMissions  = "missions"
	SourceExpertise = "expertise"
	SourceFAQs      = "faqs"

	CategoryGeneral = "General"
)

// DefaultSourceClassifier infers the collection a chunk came from by keyword.
// It is lexical only: a FAQ that mentions a client is tagged as a mission.
var DefaultSourceClassifier = Keywords(SourceKnowledge,
	Rule{Label: SourceMissions, Keywords: []string{"Mission", "Client"}},
	Rule{Label: SourceFAQs, Keywords: []string{"FAQ", "Question"}},
	Rule{Label: SourceExpertise, Keywords: []string{"Expertise", "Service"}},
)

var DefaultCategoryClassifier = Keywords(CategoryGeneral,
	Rule{Label: "PMO", Keywords: []string{"PMO"}},
	Rule{Label: "Leadership", Keywords: []string{"CTO", "CPTO"}},
	Rule{Label: "SaaS", Keywords: []string{"SaaS"}},
	Rule{Label: "Offshoring", Keywords: []string{"offshore", "Offshore"}},
)
