package engine

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
)

// sharedFetcher joins concurrent fetches for the same zone into one upstream
// call, whichever path started them. A joining caller receives the leader's
// result, computed with the leader's weather.
type sharedFetcher struct {
	inner domain.PredictionFetcher
	group singleflight.Group
}

func newSharedFetcher(inner domain.PredictionFetcher) *sharedFetcher {
	return &sharedFetcher{inner: inner}
}

// FetchPrediction runs the fetch detached from ctx so one caller giving up
// does not abort it for the others. A caller whose ctx ends first gets the
// local heuristic, matching how the fetcher treats a timeout.
func (f *sharedFetcher) FetchPrediction(ctx context.Context, zone domain.Zone, weather *domain.WeatherSnapshot) domain.PredictionResult {
	ch := f.group.DoChan(zone.ID, func() (any, error) {
		return f.inner.FetchPrediction(context.WithoutCancel(ctx), zone, weather), nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.PredictionResult)
	case <-ctx.Done():
		return domain.ClientHeuristic(zone, weather)
	}
}
