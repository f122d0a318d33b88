package pipeline

import (
	"context"
	"fmt"

	"github.com/vormadev/rstatic/kit/deepmerge"
	"github.com/vormadev/rstatic/static"
)

// FetchSiteData resolves the configured site data into state.Data.Site. When
// no data is configured only beforeSiteData runs.
func FetchSiteData(ctx context.Context, state static.State) (static.State, error) {
	state, err := state.Plugins.BeforeSiteData.Run(ctx, state)
	if err != nil {
		return state, err
	}
	if state.Config.Data == nil {
		return state, nil
	}

	state.Log().Info("Fetching site data...")
	site, err := static.ResolveObject(ctx, state.Config.Data)
	if err != nil {
		return state, fmt.Errorf("resolve site data: %w", err)
	}

	args, err := state.Plugins.AfterSiteData.Run(ctx, static.SiteArgs{State: state, Data: site})
	if err != nil {
		return state, err
	}
	state = args.State
	state.Data.Site = deepmerge.Merge(state.Data.Site, args.Data)
	return state, nil
}
