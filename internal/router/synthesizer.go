package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/report"
)

var sectionTitles = [capability.NumTags]string{
	capability.Metrics:  "Internal Performance",
	capability.Trends:   "External Market Context",
	capability.Creative: "Creative Analysis",
}

const synthesisTitle = "Synthesis & Recommendations"

// SectionTitle returns the report heading of a capability.
func SectionTitle(tag capability.Tag) string {
	if !tag.Valid() {
		return tag.String()
	}
	return sectionTitles[tag]
}

// Commentator fills the cross-section commentary slot.
type Commentator interface {
	Comment(ctx context.Context, q capability.Query, sections []report.Section) (string, error)
}

// NoCommentary leaves the commentary slot empty.
type NoCommentary struct{}

// Comment implements Commentator.
func (NoCommentary) Comment(context.Context, capability.Query, []report.Section) (string, error) {
	return "", nil
}

// ModelCommentator asks a model to correlate findings across sections.
// Answers are memoized by the content of the sections, so a given set of
// findings always yields the same commentary.
type ModelCommentator struct {
	provider llm.Provider
	cache    *lru.Cache[string, string]
}

// NewModelCommentator creates a commentator backed by provider.
func NewModelCommentator(provider llm.Provider, cacheSize int) (*ModelCommentator, error) {
	if provider == nil {
		return nil, fmt.Errorf("commentary provider is required")
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create commentary cache: %w", err)
	}
	return &ModelCommentator{provider: provider, cache: cache}, nil
}

const commentarySystemPrompt = `You are a marketing analyst. You receive report sections produced by
independent data sources about one question. Correlate them: point out where internal
performance and external market signals agree or conflict, and give at most three concrete
recommendations. Do not repeat the sections. Answer in the language of the question, in
Markdown, under 150 words.`

// Comment implements Commentator.
func (c *ModelCommentator) Comment(ctx context.Context, q capability.Query, sections []report.Section) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n", q.Text)
	for _, s := range sections {
		fmt.Fprintf(&prompt, "\n## %s\n%s\n", s.Title, s.Body)
	}

	sum := sha256.Sum256([]byte(prompt.String()))
	key := hex.EncodeToString(sum[:])
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		System: commentarySystemPrompt,
		Prompt: prompt.String(),
	})
	if err != nil {
		return "", fmt.Errorf("commentary: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	c.cache.Add(key, text)
	return text, nil
}

// Synthesizer merges dispatch results into a report.
type Synthesizer struct {
	commentator Commentator
	logger      *logging.Logger
}

// NewSynthesizer creates a synthesizer. A nil commentator means NoCommentary.
func NewSynthesizer(commentator Commentator) *Synthesizer {
	if commentator == nil {
		commentator = NoCommentary{}
	}
	return &Synthesizer{
		commentator: commentator,
		logger:      logging.GetLogger("router.synthesizer"),
	}
}

// Synthesize builds the report. Sections follow tag enumeration order no matter
// in which order results arrived; failures become explicit unavailable notices.
func (s *Synthesizer) Synthesize(ctx context.Context, q capability.Query, results map[capability.Tag]capability.Result) report.Report {
	rep := report.Report{
		Query:  q.Text,
		Window: q.Params.Window.String(),
	}

	var answered, unavailable []string
	var empty []string
	var successes []report.Section
	for _, tag := range capability.AllTags() {
		res, ok := results[tag]
		if !ok {
			continue
		}
		sec := buildSection(tag, res)
		rep.Sections = append(rep.Sections, sec)

		switch sec.Status {
		case report.StatusUnavailable:
			reason := capability.ReasonMalformed
			if res.Failure != nil {
				reason = res.Failure.Reason
			}
			unavailable = append(unavailable, fmt.Sprintf("%s (%s)", tag, reason))
		case report.StatusEmpty:
			empty = append(empty, tag.String())
			answered = append(answered, tag.String())
			successes = append(successes, sec)
		default:
			answered = append(answered, tag.String())
			successes = append(successes, sec)
		}
	}

	syn := &report.Synthesis{
		Title:       synthesisTitle,
		Answered:    answered,
		Unavailable: unavailable,
		Summary:     summarize(answered, empty, unavailable),
	}
	if len(successes) >= 2 {
		text := s.comment(ctx, q, successes)
		syn.Commentary = &text
	}
	rep.Synthesis = syn
	return rep
}

// comment returns the commentary, or "" when the commentator fails or does not
// answer before ctx is done.
func (s *Synthesizer) comment(ctx context.Context, q capability.Query, sections []report.Section) string {
	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		text, err := s.commentator.Comment(ctx, q, sections)
		done <- answer{text: text, err: err}
	}()

	var a answer
	select {
	case a = <-done:
	case <-ctx.Done():
		select {
		case a = <-done:
		default:
			a.err = ctx.Err()
		}
	}
	if a.err != nil {
		s.logger.WithContext(ctx).Warn("Leaving commentary empty: %v", a.err)
		return ""
	}
	return a.text
}

func buildSection(tag capability.Tag, res capability.Result) report.Section {
	sec := report.Section{
		Tag:      tag.String(),
		Title:    SectionTitle(tag),
		Metadata: copyMetadata(res.Metadata),
	}
	switch {
	case res.Failure != nil:
		sec.Status = report.StatusUnavailable
		sec.Reason = res.Failure.String()
	case res.Payload == nil:
		sec.Status = report.StatusUnavailable
		sec.Reason = string(capability.ReasonMalformed)
	case res.Payload.Empty():
		sec.Status = report.StatusEmpty
		sec.Body = res.Payload.Render()
		if strings.TrimSpace(sec.Body) == "" {
			sec.Body = "_No matching data._"
		}
	default:
		sec.Status = report.StatusOK
		sec.Body = res.Payload.Render()
	}
	return sec
}

func summarize(answered, empty, unavailable []string) string {
	total := len(answered) + len(unavailable)
	var parts []string
	switch {
	case total == 0:
		return "No capability was consulted."
	case len(unavailable) == 0:
		parts = append(parts, fmt.Sprintf("All %d consulted capabilities answered: %s.", total, strings.Join(answered, ", ")))
	case len(answered) == 0:
		parts = append(parts, fmt.Sprintf("None of the %d consulted capabilities could answer. Data unavailable: %s.", total, strings.Join(unavailable, ", ")))
	default:
		parts = append(parts, fmt.Sprintf("%d of %d capabilities answered: %s. Data unavailable: %s; the findings above are partial.",
			len(answered), total, strings.Join(answered, ", "), strings.Join(unavailable, ", ")))
	}
	if len(empty) > 0 {
		parts = append(parts, fmt.Sprintf("No matching data from: %s.", strings.Join(empty, ", ")))
	}
	return strings.Join(parts, " ")
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
