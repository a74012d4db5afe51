package service

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
)

// minTokenLength is the shortest query token that participates in
// matching; shorter tokens are noise and are discarded.
const minTokenLength = 3

// HierarchyBrowser searches the reference store by name tokens and groups
// the hits under their head codes. A single token matches broadly (OR);
// additional tokens each must match (AND), so results narrow as the query
// grows more specific.
type HierarchyBrowser struct {
	store *reference.Store
	log   *logrus.Logger
}

// NewHierarchyBrowser creates a browser over the given store.
func NewHierarchyBrowser(store *reference.Store, logger *logrus.Logger) *HierarchyBrowser {
	return &HierarchyBrowser{store: store, log: logger}
}

// BrowseCategories returns the head groups whose member names match the
// query. Heads without subcodes come back with Leaf set and their entry
// attached: they are directly selectable, no second click required.
func (b *HierarchyBrowser) BrowseCategories(query string) []domain.HeadGroup {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, entry := range b.store.Entries() {
		if !matchesTokens(domain.NormalizeTerm(entry.Name), tokens) {
			continue
		}
		if _, seen := counts[entry.HeadKey]; !seen {
			order = append(order, entry.HeadKey)
		}
		counts[entry.HeadKey]++
	}
	sort.Strings(order)

	groups := make([]domain.HeadGroup, 0, len(order))
	for _, head := range order {
		name, _ := b.store.HeadName(head)
		group := domain.HeadGroup{
			HeadKey:     head,
			Name:        name,
			MemberCount: counts[head],
		}
		if members := b.store.HeadMembers(head); len(members) == 0 {
			group.Leaf = true
			if entry, ok := b.store.LookupCode(head); ok {
				group.Selected = entry
			}
		}
		groups = append(groups, group)
	}

	b.log.WithFields(logrus.Fields{
		"query":  query,
		"tokens": len(tokens),
		"groups": len(groups),
	}).Debug("Category browse")

	return groups
}

// BrowseDetails returns all subcode entries under a head, ordered by code.
// An empty result means the head has no subcodes; per the auto-select
// rule the head itself is then the resolvable unit.
func (b *HierarchyBrowser) BrowseDetails(headKey string) []domain.CodeEntry {
	return b.store.HeadMembers(headKey)
}

// tokenize splits a query on whitespace and drops tokens shorter than
// minTokenLength.
func tokenize(query string) []string {
	var tokens []string
	for _, f := range strings.Fields(domain.NormalizeTerm(query)) {
		if len(f) < minTokenLength {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// matchesTokens applies the narrowing policy: every token must be a
// substring of the name. With a single token this is the broad OR/contains
// behavior; with several it becomes the AND that narrows results.
func matchesTokens(name string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(name, tok) {
			return false
		}
	}
	return true
}
