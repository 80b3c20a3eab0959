package faq

// Source tags which fallback tier produced a Response.
type Source string

const (
	SourceCached  Source = "cached"
	SourceFAQ     Source = "faq"
	SourceDefault Source = "default"
)

// Entry is one immutable corpus item.
type Entry struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Keywords       []string `json:"keywords"`
	RelatedContent []string `json:"relatedContent,omitempty"`
}

// Response is what every fallback tier returns. Fallback is always true.
type Response struct {
	Content          string   `json:"content"`
	Source           Source   `json:"source"`
	Confidence       float64  `json:"confidence"`
	EntryID          string   `json:"entryId,omitempty"`
	Category         string   `json:"category,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
	RelatedContent   []string `json:"relatedContent,omitempty"`
	RelatedFAQs      []string `json:"relatedFaqs,omitempty"`
	Fallback         bool     `json:"fallback"`
}

// Match is a scored corpus entry.
type Match struct {
	Entry      Entry
	Score      float64
	Confidence float64
}

func (r Response) clone() Response {
	r.SuggestedActions = cloneStrings(r.SuggestedActions)
	r.RelatedContent = cloneStrings(r.RelatedContent)
	r.RelatedFAQs = cloneStrings(r.RelatedFAQs)
	return r
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
