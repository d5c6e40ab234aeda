// Package revisioning decides how node page versions are written and how a
// complete node page is rebuilt from its stored versions.
package revisioning

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/arbor/internal/page"
)

// Policy names accepted by New.
const (
	PolicyIncremental  = "incremental"
	PolicyDifferential = "differential"
	PolicyNone         = "none"
)

// DefaultMilestone is the default number of revisions between full pages.
const DefaultMilestone = 4

// Errors.
var (
	ErrUnknownPolicy    = errors.New("unknown revisioning policy")
	ErrInvalidMilestone = errors.New("milestone must be positive")
	ErrBrokenChain      = errors.New("node page version chain is broken")
)

// Version is a stored node page together with its storage key.
type Version struct {
	Key  int64
	Page *page.NodePage
}

// Strategy decides the shape of the next version of a node page.
type Strategy interface {
	// Name returns the policy name.
	Name() string
	// Next returns the page version to write for revision. chain is the
	// stored chain of the page, newest first and ending in a full page;
	// complete is its reconstruction.
	Next(chain []Version, complete *page.NodePage, revision int64) *page.NodePage
}

// New returns the strategy registered under policy.
func New(policy string, milestone int) (Strategy, error) {
	if milestone <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMilestone, milestone)
	}
	switch policy {
	case PolicyIncremental:
		return Incremental{Milestone: milestone}, nil
	case PolicyDifferential:
		return Differential{Milestone: milestone}, nil
	case PolicyNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// LoadChain reads the versions of a node page starting at key and
// following PreviousKey until a full page.
func LoadChain(l page.Loader, key int64) ([]Version, error) {
	var chain []Version
	for {
		if key == page.NullKey {
			return nil, fmt.Errorf("%w: delta without full page", ErrBrokenChain)
		}
		p, err := l.LoadPage(key)
		if err != nil {
			return nil, err
		}
		np, ok := p.(*page.NodePage)
		if !ok {
			return nil, fmt.Errorf("%w: key %d holds %s page", ErrBrokenChain, key, p.Kind())
		}
		chain = append(chain, Version{Key: key, Page: np})
		if np.Full {
			return chain, nil
		}
		key = np.PreviousKey
	}
}

// Reconstruct overlays a chain, newest first, into one complete page. The
// result shares node pointers with the chain.
func Reconstruct(chain []Version) *page.NodePage {
	if len(chain) == 0 {
		return nil
	}
	newest := chain[0].Page
	complete := page.NewNodePage(newest.PageKey, newest.Revision, true)
	for _, v := range chain {
		complete.CopyFrom(v.Page)
	}
	return complete
}

// Load reads and reconstructs the node page stored at key.
func Load(l page.Loader, key int64) (*page.NodePage, error) {
	chain, err := LoadChain(l, key)
	if err != nil {
		return nil, err
	}
	return Reconstruct(chain), nil
}

// fullCopy returns a full version holding every slot of complete.
func fullCopy(complete *page.NodePage, revision int64) *page.NodePage {
	np := page.NewNodePage(complete.PageKey, revision, true)
	np.CopyFrom(complete)
	return np
}

// Incremental writes only changed slots, chaining each version to the
// previous one, and writes a full page once the chain reaches Milestone.
type Incremental struct {
	Milestone int
}

// Name implements Strategy.
func (Incremental) Name() string { return PolicyIncremental }

// Next implements Strategy.
func (s Incremental) Next(chain []Version, complete *page.NodePage, revision int64) *page.NodePage {
	if len(chain) >= s.Milestone {
		return fullCopy(complete, revision)
	}
	np := page.NewNodePage(complete.PageKey, revision, false)
	np.PreviousKey = chain[0].Key
	return np
}

// Differential writes every slot changed since the last full page, so a
// read needs at most the newest delta and one full page. A full page is
// written once Milestone revisions have passed since the last one.
type Differential struct {
	Milestone int
}

// Name implements Strategy.
func (Differential) Name() string { return PolicyDifferential }

// Next implements Strategy.
func (s Differential) Next(chain []Version, complete *page.NodePage, revision int64) *page.NodePage {
	full := chain[len(chain)-1]
	if revision-full.Page.Revision >= int64(s.Milestone) {
		return fullCopy(complete, revision)
	}
	np := page.NewNodePage(complete.PageKey, revision, false)
	np.PreviousKey = full.Key
	if len(chain) > 1 {
		np.CopyFrom(chain[0].Page)
	}
	return np
}

// None writes every version as a full page.
type None struct{}

// Name implements Strategy.
func (None) Name() string { return PolicyNone }

// Next implements Strategy.
func (None) Next(_ []Version, complete *page.NodePage, revision int64) *page.NodePage {
	return fullCopy(complete, revision)
}
