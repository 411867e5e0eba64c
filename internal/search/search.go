// Package search ranks mirrored nodes against a free-text query.
//
// There is no native full-text index; instead a coarse candidate pre-filter
// runs in the store (substring passes) and a fine composite scorer runs
// over the candidate set, combining phrase, per-word, and trigram signals.
// The package is a pure reader of the cache store.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"wfmirror/internal/cache"
)

const (
	// candidateLimit bounds the two wide pre-filter passes. The exact
	// phrase pass is unbounded since its matches are guaranteed relevant.
	candidateLimit = 200

	// minScore discards candidates the scorer considers noise.
	minScore = 0.2

	// DefaultLimit and MaxLimit clamp the caller's requested result count.
	DefaultLimit = 10
	MaxLimit     = 50

	weightPhrase      = 0.45
	weightAllInName   = 0.30
	weightAllAnywhere = 0.10
	weightTrigram     = 0.15

	// noteFactor weights a note match below a name match.
	noteFactor = 0.8

	// maxTrigramNameLen is the longest name (in runes) the whole-query
	// trigram signal applies to; past that, trigram noise dominates.
	maxTrigramNameLen = 48

	// Per-word match ladder.
	scoreExactToken   = 1.0
	scoreQueryPrefix  = 0.9
	scoreTokenPrefix  = 0.8
	scoreSubstring    = 0.3
	trigramWordFloor  = 0.4
	trigramWordScale  = 0.7
	minPrefixTokenLen = 3
)

// Result is one ranked search hit.
type Result struct {
	Node    *cache.Node `json:"node"`
	Score   float64     `json:"score"`
	Path    string      `json:"path"`
	Preview []string    `json:"preview,omitempty"`
}

// ClampLimit bounds a requested result count to [1, MaxLimit], defaulting
// to DefaultLimit when unset.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Run searches the mirror for query and returns up to limit results ordered
// by descending score, each annotated with its breadcrumb path and a
// preview of its first few children.
func Run(ctx context.Context, store *cache.DB, query string, limit int) ([]*Result, error) {
	limit = ClampLimit(limit)

	phrase := normalize(query)
	if phrase == "" {
		return nil, fmt.Errorf("empty query")
	}
	words := strings.Fields(phrase)

	candidates, err := gatherCandidates(ctx, store, phrase, words)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, node := range candidates {
		score := scoreNode(phrase, words, node)
		if score < minScore {
			continue
		}
		results = append(results, &Result{Node: node, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.Name < results[j].Node.Name
	})
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		r.Path = breadcrumb(ctx, store, r.Node)
		r.Preview = childPreview(ctx, store, r.Node.ID)
	}
	return results, nil
}

// gatherCandidates unions the three pre-filter passes, de-duplicated by id.
// The word passes only run for multi-word queries; single-token queries
// rely on the phrase pass plus scoring.
func gatherCandidates(ctx context.Context, store *cache.DB, phrase string, words []string) ([]*cache.Node, error) {
	seen := make(map[string]bool)
	var candidates []*cache.Node

	add := func(nodes []*cache.Node) {
		for _, n := range nodes {
			if !seen[n.ID] {
				seen[n.ID] = true
				candidates = append(candidates, n)
			}
		}
	}

	exact, err := store.SearchPhrase(ctx, phrase)
	if err != nil {
		return nil, err
	}
	add(exact)

	if len(words) >= 2 {
		all, err := store.SearchAllWords(ctx, words, candidateLimit)
		if err != nil {
			return nil, err
		}
		add(all)

		any, err := store.SearchAnyWord(ctx, words, candidateLimit)
		if err != nil {
			return nil, err
		}
		add(any)
	}

	return candidates, nil
}

// scoreNode computes the composite score in [0, ~1.2] for one candidate.
func scoreNode(phrase string, words []string, node *cache.Node) float64 {
	name := strings.ToLower(node.Name)
	note := strings.ToLower(node.Note)

	var score float64

	// Exact phrase, name weighted above note.
	if strings.Contains(name, phrase) {
		score += weightPhrase
	} else if strings.Contains(note, phrase) {
		score += weightPhrase * noteFactor
	}

	nameTokens := strings.Fields(name)
	allTokens := append(nameTokens, strings.Fields(note)...)

	// All query words matched against name tokens.
	if s, ok := matchAll(words, nameTokens); ok {
		score += weightAllInName * s
	}

	// All query words matched anywhere.
	if s, ok := matchAll(words, allTokens); ok {
		score += weightAllAnywhere * s
	}

	// Whole-query trigram similarity against short names only.
	if len([]rune(name)) <= maxTrigramNameLen {
		score += weightTrigram * diceSimilarity(phrase, name)
	}

	return score
}

// matchAll reports the average ladder strength of the query words against
// the candidate tokens, and whether every word matched at all.
func matchAll(words, tokens []string) (float64, bool) {
	if len(words) == 0 || len(tokens) == 0 {
		return 0, false
	}
	var total float64
	for _, w := range words {
		s := wordMatch(w, tokens)
		if s == 0 {
			return 0, false
		}
		total += s
	}
	return total / float64(len(words)), true
}

// wordMatch scores one query word against candidate tokens on a priority
// ladder: exact equality beats prefix relations, which beat a bare
// substring hit. The substring rung is deliberately penalized so a query
// like "body" doesn't ride on "somebody". Below that, trigram similarity
// above a floor is admitted at a discount.
func wordMatch(word string, tokens []string) float64 {
	best := 0.0
	for _, tok := range tokens {
		var s float64
		switch {
		case tok == word:
			s = scoreExactToken
		case len(tok) >= minPrefixTokenLen && strings.HasPrefix(tok, word):
			s = scoreQueryPrefix
		case len(tok) >= minPrefixTokenLen && strings.HasPrefix(word, tok):
			s = scoreTokenPrefix
		case strings.Contains(tok, word):
			s = scoreSubstring
		default:
			if tri := diceSimilarity(word, tok); tri >= trigramWordFloor {
				s = tri * trigramWordScale
			}
		}
		if s > best {
			best = s
		}
	}
	return best
}

// breadcrumb walks parent_id to the root and joins the names. A visited
// set guards against accidental cycles in cached data.
func breadcrumb(ctx context.Context, store *cache.DB, node *cache.Node) string {
	var parts []string
	visited := map[string]bool{node.ID: true}

	current := node
	for current.ParentID != nil {
		id := *current.ParentID
		if visited[id] {
			break
		}
		visited[id] = true

		parent, err := store.GetNodeContext(ctx, id)
		if err != nil {
			break
		}
		parts = append([]string{parent.Name}, parts...)
		current = parent
	}

	parts = append(parts, node.Name)
	return strings.Join(parts, " > ")
}

// childPreview returns the names of the node's first few children ordered
// by priority.
func childPreview(ctx context.Context, store *cache.DB, id string) []string {
	children, err := store.ChildrenContext(ctx, &id)
	if err != nil {
		return nil
	}
	const previewSize = 3
	if len(children) > previewSize {
		children = children[:previewSize]
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name)
	}
	return names
}

// normalize lower-cases and collapses whitespace so phrase matching and
// tokenization agree on one canonical form.
func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
