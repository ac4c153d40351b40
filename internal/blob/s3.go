package blob

import (
	"context"

	infraS3 "brewcore/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store served by an in-process fake
// endpoint, so exports can be tested without a bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
