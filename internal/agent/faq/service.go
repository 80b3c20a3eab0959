// Package faq answers questions from a static FAQ corpus when the live
// assistant is unavailable. Answers come from a normalized-question cache,
// then keyword scoring against the corpus, then a generic default.
package faq

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

const (
	// ConfidenceFloor is the score a match must exceed to be returned as an answer.
	ConfidenceFloor = 0.3
	// DefaultCacheSize is used when NewService is given a non-positive size.
	DefaultCacheSize = 500

	maxMatches  = 5
	maxRelated  = 2
	keywordHit  = 2.0
	questionHit = 1.0
	answerHit   = 0.5
)

var (
	ErrEmptyCorpus  = errors.New("faq corpus is empty")
	ErrInvalidEntry = errors.New("invalid faq entry")
)

const defaultContent = "I can't reach the assistant right now, and I couldn't find a saved answer " +
	"to that question. Please try again in a few minutes, or use one of the options below."

var defaultActions = []string{
	"Browse the course catalog",
	"Check your order status from your account page",
	"Contact our support team",
	"Try rephrasing your question",
}

type indexedEntry struct {
	Entry
	keywords      []string
	questionWords map[string]struct{}
	answer        string
}

// Service is safe for concurrent use. The corpus never changes after
// construction and the cache locks internally.
type Service struct {
	entries []indexedEntry
	cache   *lru.Cache[string, Response]
}

// NewService indexes entries and sizes the answer cache. An empty corpus is
// accepted; SearchFAQ then reports ErrEmptyCorpus.
func NewService(entries []Entry, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Response](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create faq cache: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	indexed := make([]indexedEntry, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidEntry, i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidEntry, e.ID)
		}
		seen[e.ID] = struct{}{}
		indexed = append(indexed, index(e))
	}

	logx.Debug().Int("entries", len(indexed)).Int("cache_size", cacheSize).Msg("FAQ service ready")
	return &Service{entries: indexed, cache: cache}, nil
}

func index(e Entry) indexedEntry {
	e.Keywords = cloneStrings(e.Keywords)
	e.RelatedContent = cloneStrings(e.RelatedContent)

	ie := indexedEntry{
		Entry:         e,
		questionWords: make(map[string]struct{}),
		answer:        Normalize(e.Answer),
	}
	for _, kw := range e.Keywords {
		if n := Normalize(kw); n != "" {
			ie.keywords = append(ie.keywords, n)
		}
	}
	for _, w := range words(Normalize(e.Question)) {
		ie.questionWords[w] = struct{}{}
	}
	return ie
}

// Search scores every entry against question and returns up to five matches
// with positive confidence, best first. Ties keep corpus order.
func (s *Service) Search(question string) []Match {
	q := Normalize(question)
	qWords := words(q)
	if len(qWords) == 0 {
		return nil
	}

	var matches []Match
	for _, e := range s.entries {
		score := 0.0
		for _, kw := range e.keywords {
			if strings.Contains(q, kw) {
				score += keywordHit
			}
		}
		for _, w := range qWords {
			if _, ok := e.questionWords[w]; ok {
				score += questionHit
			}
			if strings.Contains(e.answer, w) {
				score += answerHit
			}
		}

		confidence := score / float64(len(qWords)+len(e.keywords))
		if confidence > 1 {
			confidence = 1
		}
		if confidence > 0 {
			matches = append(matches, Match{Entry: e.Entry, Score: score, Confidence: confidence})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

// SearchFAQ returns the best fallback answer for question: a cached answer
// verbatim, else the top match above ConfidenceFloor, else the default.
func (s *Service) SearchFAQ(question string) (Response, error) {
	key := cacheKey(question)
	if cached, ok := s.cache.Get(key); ok {
		resp := cached.clone()
		resp.Source = SourceCached
		resp.Fallback = true
		return resp, nil
	}

	if len(s.entries) == 0 {
		return Response{}, ErrEmptyCorpus
	}

	matches := s.Search(question)
	if len(matches) == 0 || matches[0].Confidence <= ConfidenceFloor {
		return DefaultResponse(), nil
	}

	top := matches[0]
	resp := Response{
		Content:        top.Entry.Answer,
		Source:         SourceFAQ,
		Confidence:     top.Confidence,
		EntryID:        top.Entry.ID,
		Category:       top.Entry.Category,
		RelatedContent: cloneStrings(top.Entry.RelatedContent),
		Fallback:       true,
	}
	for _, m := range matches[1:] {
		if len(resp.RelatedFAQs) == maxRelated {
			break
		}
		resp.RelatedFAQs = append(resp.RelatedFAQs, m.Entry.ID)
		resp.SuggestedActions = append(resp.SuggestedActions, "Ask: "+m.Entry.Question)
	}

	s.cache.Add(key, resp.clone())
	return resp, nil
}

// CacheAIResponse stores a live answer so later fallbacks can replay it.
func (s *Service) CacheAIResponse(question, answer string) {
	if strings.TrimSpace(answer) == "" {
		return
	}
	key := cacheKey(question)
	if key == "" {
		return
	}
	s.cache.Add(key, Response{
		Content:    answer,
		Source:     SourceCached,
		Confidence: 1,
		Fallback:   true,
	})
}

// CacheSize returns the number of cached answers.
func (s *Service) CacheSize() int {
	return s.cache.Len()
}

// DefaultResponse is the generic answer used when nothing better matches.
func DefaultResponse() Response {
	return Response{
		Content:          defaultContent,
		Source:           SourceDefault,
		Confidence:       0,
		SuggestedActions: cloneStrings(defaultActions),
		Fallback:         true,
	}
}

// cacheKey is the normalized question, or the trimmed question when it has
// no letters or digits at all.
func cacheKey(question string) string {
	if k := Normalize(question); k != "" {
		return k
	}
	return strings.TrimSpace(question)
}
