package classifier

import (
	"context"
	"crypto/sha256"

	"civicspot/models"
)

// StubClient is a deterministic, no-network classifier intended for CI and
// local end-to-end tests. The verdict is derived from the image bytes so
// repeated runs are stable.
type StubClient struct {
	// Err, when set, is returned from every AnalyzeImage call. Used to
	// exercise the documented fallback path.
	Err error
}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) SourceName() string { return "Stub" }

func (c *StubClient) AnalyzeImage(ctx context.Context, photo []byte) (Analysis, error) {
	if c.Err != nil {
		return Analysis{}, c.Err
	}
	sum := sha256.Sum256(photo)
	return Analysis{
		Category:    models.ValidCategories[int(sum[0])%len(models.ValidCategories)],
		Severity:    1 + int(sum[1])%10,
		AIGenerated: true,
	}, nil
}
