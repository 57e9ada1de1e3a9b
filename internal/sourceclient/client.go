// Package sourceclient implements the vendor-adaptive openEHR Source Client
// (C2): two auth variants sharing one HTTP transport, AQL querying, FLAT
// composition fetch, and retry with backoff.
package sourceclient

import (
	"context"
	"time"

	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
)

// Client is the capability set both auth variants implement.
type Client interface {
	Authenticate(ctx context.Context) error
	EnumerateSubjectIDs(ctx context.Context) ([]ids.SubjectId, error)
	ListCompositions(ctx context.Context, subject ids.SubjectId, template ids.TemplateId, since *time.Time) ([]composition.Metadata, error)
	FetchComposition(ctx context.Context, meta composition.Metadata) (composition.Composition, error)
	IsAuthenticated() bool
	BaseURL() string
}
