// Package membership selects which managed clusters join a cluster set.
//
// Selection is a pure filter pipeline over the candidates, independent of the
// order the clusters are enumerated or committed in.
package membership

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
)

// Sentinel is the hub's own managed cluster. It never joins a set.
const Sentinel = "local-cluster"

// DefaultPlatforms are the platforms selected when no allow-list is given.
var DefaultPlatforms = []string{"Amazon", "Google"}

// Candidate is a managed cluster that may be added to a set.
type Candidate struct {
	Name     string
	Platform string
	Labels   map[string]string
}

// Selector picks candidates either by name or by platform. A non-empty
// AllowList takes precedence over Platforms.
type Selector struct {
	AllowList []string
	Platforms []string
}

// Matches reports whether the candidate satisfies the selection rule. The
// sentinel is not special-cased here, see Plan.
func (s Selector) Matches(c Candidate) bool {
	if len(s.AllowList) > 0 {
		return lo.Contains(s.AllowList, c.Name)
	}
	platforms := s.Platforms
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}
	return lo.Contains(platforms, c.Platform)
}

func (s Selector) String() string {
	if len(s.AllowList) > 0 {
		return fmt.Sprintf("names %v", s.AllowList)
	}
	if len(s.Platforms) == 0 {
		return fmt.Sprintf("platforms %v", DefaultPlatforms)
	}
	return fmt.Sprintf("platforms %v", s.Platforms)
}

// Plan returns the candidates to add: the sentinel dropped, the rule applied,
// duplicates removed, the observed order kept.
func Plan(candidates []Candidate, selector Selector) []Candidate {
	eligible := lo.Reject(candidates, func(c Candidate, _ int) bool {
		return c.Name == Sentinel
	})
	selected := lo.Filter(eligible, func(c Candidate, _ int) bool {
		return selector.Matches(c)
	})
	return lo.UniqBy(selected, func(c Candidate) string {
		return c.Name
	})
}

// Source enumerates the candidates of a set.
type Source interface {
	Candidates(ctx context.Context, set string) ([]Candidate, error)
}

// Committer stages selections and commits them in one submit.
type Committer interface {
	Toggle(name string)
	Submit(ctx context.Context, set string) error
}

// AddMembers selects the candidates matching selector and adds them to set.
// Submit is the only commit point: a failure before it leaves the set as it
// was.
func AddMembers(ctx context.Context, set string, source Source, committer Committer, selector Selector) (sets.Set[string], error) {
	logger := klog.FromContext(ctx).WithValues("clusterSet", set, "selector", selector.String())

	candidates, err := source.Candidates(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("enumerate candidates of %s: %w", set, err)
	}
	if len(candidates) == 0 {
		return nil, failure.New(failure.PreconditionMissing, "candidates of "+set, 0, nil)
	}

	planned := Plan(candidates, selector)
	selected := sets.New(lo.Map(planned, func(c Candidate, _ int) string {
		return c.Name
	})...)
	if selected.Len() == 0 {
		logger.Info("No candidate matched", "candidates", len(candidates))
		return selected, nil
	}

	lo.ForEach(planned, func(c Candidate, _ int) {
		committer.Toggle(c.Name)
	})
	if err := committer.Submit(ctx, set); err != nil {
		return nil, fmt.Errorf("submit members of %s: %w", set, err)
	}
	logger.Info("Added members", "members", sets.List(selected))
	return selected, nil
}
