package repository

import (
	"context"
	"sort"

	"suburbiq/internal/model"
)

// SuburbDirectory resolves suburb names to their state/LGA candidates
type SuburbDirectory struct {
	data Fetcher
}

// NewSuburbDirectory creates a directory over a data fetcher
func NewSuburbDirectory(data Fetcher) *SuburbDirectory {
	return &SuburbDirectory{data: data}
}

// Lookup returns the distinct (suburb, state, lga) combinations carrying
// rollup price data for a suburb name, ordered by state
func (d *SuburbDirectory) Lookup(ctx context.Context, suburb string) ([]model.ClarificationOption, error) {
	rows, err := d.data.Fetch(ctx, model.TableQuery{
		ID:      "directory:" + suburb,
		Table:   "price_table",
		Select:  []string{"suburb", "state", "lga"},
		Filters: []model.Filter{model.Eq("suburb", suburb), model.IsNull("bedrooms")},
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	options := []model.ClarificationOption{}
	for _, r := range rows {
		opt := model.ClarificationOption{
			Suburb: r.String("suburb"),
			State:  r.String("state"),
			LGA:    r.String("lga"),
		}
		key := opt.State + "|" + opt.LGA
		if opt.State == "" || seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, opt)
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].State != options[j].State {
			return options[i].State < options[j].State
		}
		return options[i].LGA < options[j].LGA
	})
	return options, nil
}

// DistinctStates counts the different states among options
func DistinctStates(options []model.ClarificationOption) int {
	states := map[string]bool{}
	for _, o := range options {
		states[o.State] = true
	}
	return len(states)
}
