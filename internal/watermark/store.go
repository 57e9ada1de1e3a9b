package watermark

import "context"

// Store persists watermark state. Load returns (nil, nil) when no watermark
// exists yet for the given id.
type Store interface {
	Load(ctx context.Context, id string) (*Watermark, error)
	Save(ctx context.Context, w Watermark) error
}
