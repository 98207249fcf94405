package doccache

import (
	"time"

	"github.com/inventorycmdb/server/internal/domain"
)

// Entry is the cached result of looking up one URL. Exactly one of Document
// and Failure is set.
type Entry struct {
	URL       string           `yaml:"-"`
	FetchedAt time.Time        `yaml:"fetched_at"`
	Document  *domain.Document `yaml:"document,omitempty"`
	Failure   *Failure         `yaml:"failure,omitempty"`
}

// Failure describes why a document could not be obtained
type Failure struct {
	Message   string `yaml:"message"`
	Exception string `yaml:"exception,omitempty"`
	Status    int    `yaml:"status,omitempty"`
}

// OK reports whether the entry holds a document
func (e Entry) OK() bool {
	return e.Failure == nil
}

// Vars returns the mapping this entry contributes to host or group vars.
// Failures become diagnostic keys so they show up on the affected entity.
func (e Entry) Vars() map[string]any {
	if e.Failure != nil {
		vars := map[string]any{
			"error":   true,
			"message": e.Failure.Message,
		}
		if e.Failure.Exception != "" {
			vars["exception"] = e.Failure.Exception
		}
		return vars
	}
	return e.Document.Map()
}

func okEntry(url string, doc *domain.Document) Entry {
	return Entry{URL: url, FetchedAt: time.Now(), Document: doc}
}

func failedEntry(url string, f Failure) Entry {
	return Entry{URL: url, FetchedAt: time.Now(), Failure: &f}
}
