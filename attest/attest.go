package attest

import (
	"context"
	"time"
)

// Source identifies this service in attestation attributes.
const Source = "harvester"

// Predicate vocabulary. Every attestation produced by the projector uses
// exactly one of these.
const (
	PredicateHasTitle           = "has_title"
	PredicateHasDescription     = "has_meta_description"
	PredicateHasCanonical       = "has_canonical_url"
	PredicateAuthoredBy         = "authored_by"
	PredicatePublishedAt        = "published_at"
	PredicateHasImage           = "has_image"
	PredicateHasStructuredData  = "has_structured_data"
	PredicateLinksTo            = "links_to"
	PredicateLinksExternallyTo  = "links_externally_to"
	PredicateFeedContains       = "feed_contains"
	PredicateSitemapContains    = "sitemap_contains"
)

// Command asks the sink to mint a new attestation.
type Command struct {
	Subjects   []string          `json:"subjects"`
	Predicates []string          `json:"predicates"`
	Contexts   []string          `json:"contexts"`
	Actors     []string          `json:"actors,omitempty"`
	Timestamp  time.Time         `json:"timestamp,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attestation is an immutable fact recorded by the sink.
type Attestation struct {
	ID         string            `json:"id"`
	Subjects   []string          `json:"subjects"`
	Predicates []string          `json:"predicates"`
	Contexts   []string          `json:"contexts"`
	Actors     []string          `json:"actors,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Source     string            `json:"source,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Filter narrows a sink query. Empty list fields match everything;
// zero time bounds are open-ended.
type Filter struct {
	Subjects   []string  `json:"subjects,omitempty"`
	Predicates []string  `json:"predicates,omitempty"`
	Contexts   []string  `json:"contexts,omitempty"`
	Actors     []string  `json:"actors,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Until      time.Time `json:"until,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Sink is the narrow interface to the external attestation store.
type Sink interface {
	GenerateAndCreate(ctx context.Context, cmd Command) (*Attestation, error)
	Exists(ctx context.Context, id string) (bool, error)
	Query(ctx context.Context, filter Filter) ([]Attestation, error)
	Close() error
}
