package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/querycache"
)

// ListSource is the part of the query cache the resolver reads.
type ListSource interface {
	Cached(key string) querycache.Result
	Get(ctx context.Context, path string) querycache.Result
}

// ResolveSiblings returns the ordered sibling list. A non-empty list cached under
// cacheKey wins and nothing is fetched. Otherwise fallback is fetched once; its
// results are used, defaulting to empty. A fetch error is returned with the
// empty list and is not retried. An empty fallback disables the fetch.
func ResolveSiblings(ctx context.Context, src ListSource, cacheKey, fallback string) ([]*models.SubmissionSummary, error) {
	if cacheKey != "" {
		if cached := decodeList(src.Cached(cacheKey).Data); len(cached) > 0 {
			return cached, nil
		}
	}

	empty := []*models.SubmissionSummary{}
	if fallback == "" {
		return empty, nil
	}

	r := src.Get(ctx, fallback)
	if r.Err != nil {
		return empty, fmt.Errorf("fetch sibling list: %w", r.Err)
	}
	if list := decodeList(r.Data); list != nil {
		return list, nil
	}
	return empty, nil
}

// decodeList reads the results of a list envelope. Malformed data reads as nothing.
func decodeList(raw json.RawMessage) []*models.SubmissionSummary {
	if len(raw) == 0 {
		return nil
	}
	var env models.SubmissionList
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return env.Results
}
