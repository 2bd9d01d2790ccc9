// Package content fetches knowledge records from the content repository and
// formats them into the single labeled document that indexing chunks.
package content

import (
	"context"
	"errors"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Record is one normalized page from the content source.
type Record struct {
	ID    string
	Title string
	Body  string
}

// Collection is a logical group of records, rendered as one `## Label` section.
type Collection struct {
	ID    string
	Label string
}

const (
	CollectionKnowledge = "knowledge"
	CollectionExpertise = "expertise"
	CollectionMissions  = "missions"
	CollectionFAQs      = "faqs"
)

// DefaultCollections returns the collections in document order. The order is
// fixed so that chunk boundaries are reproducible for a given snapshot.
func DefaultCollections() []Collection {
	return []Collection{
		{ID: CollectionKnowledge, Label: "About Baptiste & Alpa Stratégie"},
		{ID: CollectionExpertise, Label: "Expertise & Services"},
		{ID: CollectionMissions, Label: "Client Missions & Case Studies"},
		{ID: CollectionFAQs, Label: "Frequently Asked Questions"},
	}
}

type Source interface {
	QueryCollection(ctx context.Context, collectionID string) ([]Record, error)
}

// CollectionResult is the outcome of fetching one collection: either records
// or the reason the fetch failed.
type CollectionResult struct {
	Collection Collection
	Records    []Record
	Err        error
}

func (r CollectionResult) Failed() bool {
	return r.Err != nil
}
