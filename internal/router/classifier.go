package router

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/logging"
)

// Classification sources.
const (
	SourceExplicit = "explicit"
	SourceKeyword  = "keyword"
	SourceModel    = "model"
	SourceNone     = "none"
)

// Classification is the outcome of intent classification.
type Classification struct {
	// Tags are distinct and in enumeration order. Empty when Unroutable.
	Tags []capability.Tag `json:"tags"`

	// Unroutable marks a query no capability could take.
	Unroutable bool `json:"unroutable"`

	// Source tells which stage produced Tags: explicit, keyword, model or none.
	Source string `json:"source"`

	// Matched lists the keywords that selected Tags (keyword source only).
	Matched []string `json:"matched,omitempty"`

	// Raw is the verbatim model answer, or the model error, for audit.
	Raw string `json:"raw,omitempty"`

	// Rejected lists names the model or caller produced that were not dispatched.
	Rejected []string `json:"rejected,omitempty"`
}

// Err returns an error wrapping capability.ErrUnroutable for an unroutable
// classification and nil otherwise.
func (c Classification) Err() error {
	if !c.Unroutable {
		return nil
	}
	if len(c.Rejected) > 0 {
		return fmt.Errorf("%w (source %s, rejected %s)", capability.ErrUnroutable, c.Source, strings.Join(c.Rejected, ", "))
	}
	return fmt.Errorf("%w (source %s)", capability.ErrUnroutable, c.Source)
}

func (c Classification) clone() Classification {
	out := c
	out.Tags = append([]capability.Tag(nil), c.Tags...)
	out.Matched = append([]string(nil), c.Matched...)
	out.Rejected = append([]string(nil), c.Rejected...)
	return out
}

// Classifier maps a query to capability tags.
type Classifier interface {
	Classify(ctx context.Context, q capability.Query) (Classification, error)
}

// ClassifierOptions configures a RuleClassifier.
type ClassifierOptions struct {
	// Keywords are deterministic overrides per tag, matched case-insensitively.
	// ASCII keywords match whole words (plural and -ing/-ed forms included);
	// others, such as Thai, match as substrings.
	Keywords map[capability.Tag][]string

	// Model is consulted when no keyword matches. Nil disables model classification.
	Model llm.Provider

	// CacheSize bounds the memoized model classifications (default 512).
	CacheSize int
}

// RuleClassifier resolves tags in order: explicit parameters, keyword overrides,
// the model, and finally the unroutable marker.
type RuleClassifier struct {
	keywords [capability.NumTags][]keyword
	model    llm.Provider
	cache    *lru.Cache[string, Classification]
	logger   *logging.Logger
}

// NewClassifier creates a RuleClassifier. Keywords for tags outside the
// vocabulary are rejected with ErrUnknownCapability.
func NewClassifier(opts ClassifierOptions) (*RuleClassifier, error) {
	c := &RuleClassifier{
		model:  opts.Model,
		logger: logging.GetLogger("router.classifier"),
	}
	for tag, words := range opts.Keywords {
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: keyword override for %s", capability.ErrUnknownCapability, tag)
		}
		for _, w := range words {
			w = normalize(w)
			if w != "" {
				c.keywords[tag] = append(c.keywords[tag], newKeyword(w))
			}
		}
	}

	size := opts.CacheSize
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, Classification](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Classify implements Classifier. Model errors never fail classification; they
// produce an unroutable result with the error kept in Raw.
func (c *RuleClassifier) Classify(ctx context.Context, q capability.Query) (Classification, error) {
	if len(q.Params.Capabilities) > 0 {
		return Classification{Tags: capability.Distinct(q.Params.Capabilities), Source: SourceExplicit}, nil
	}

	if cls, ok := c.matchKeywords(q); ok {
		return cls, nil
	}

	if c.model == nil || strings.TrimSpace(q.Text) == "" {
		return Classification{Unroutable: true, Source: SourceNone}, nil
	}

	key := normalize(q.Text)
	if cached, ok := c.cache.Get(key); ok {
		return cached.clone(), nil
	}

	cls, cacheable := c.classifyWithModel(ctx, q)
	if cacheable {
		c.cache.Add(key, cls.clone())
	}
	return cls, nil
}

// keyword is one lowercased override. word is nil for keywords matched as
// substrings.
type keyword struct {
	text string
	word *regexp.Regexp
}

func newKeyword(w string) keyword {
	k := keyword{text: w}
	if !isASCII(w) {
		return k
	}
	pattern := regexp.QuoteMeta(w)
	if first, _ := utf8.DecodeRuneInString(w); isWordRune(first) {
		pattern = `\b` + pattern
	}
	if last, _ := utf8.DecodeLastRuneInString(w); isWordRune(last) {
		pattern += `(?:s|es|ing|ed)?\b`
	}
	k.word = regexp.MustCompile(pattern)
	return k
}

func (k keyword) matches(text string) bool {
	if k.word == nil {
		return strings.Contains(text, k.text)
	}
	return k.word.MatchString(text)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (c *RuleClassifier) matchKeywords(q capability.Query) (Classification, bool) {
	text := normalize(q.Text)
	var cls Classification
	for _, tag := range capability.AllTags() {
		hit := false
		for _, k := range c.keywords[tag] {
			if k.matches(text) {
				cls.Matched = append(cls.Matched, k.text)
				hit = true
			}
		}
		if hit {
			cls.Tags = append(cls.Tags, tag)
		}
	}
	if len(cls.Tags) == 0 {
		return Classification{}, false
	}
	sort.Strings(cls.Matched)
	cls.Source = SourceKeyword
	return cls, true
}

const classifierSystemPrompt = `You route marketing questions to data capabilities.
Capabilities:
- metrics: internal campaign performance (ROAS, CTR, CPC, conversions, spend, budget, campaign status).
- trends: external social media trends, sentiment and competitor buzz on Thai platforms (Facebook, YouTube, TikTok, Pantip, X).
- creative: analysis of a campaign's ad creatives and images (style, text, faces, tone).
Pick every capability needed to answer the question. Pick none if the question is unrelated to marketing.
Answer only with JSON: {"capabilities": ["metrics"]}`

type modelAnswer struct {
	Capabilities []string `json:"capabilities"`
}

// classifyWithModel returns the classification and whether it may be memoized.
// Transport errors are not memoized so a recovered model is consulted again.
func (c *RuleClassifier) classifyWithModel(ctx context.Context, q capability.Query) (Classification, bool) {
	resp, err := c.model.Generate(ctx, llm.Request{
		System:    classifierSystemPrompt,
		Prompt:    q.Text,
		JSON:      true,
		MaxTokens: 128,
	})
	if err != nil {
		c.logger.Warn("Model classification failed: %v", err)
		return Classification{Unroutable: true, Source: SourceModel, Raw: "error: " + err.Error()}, false
	}

	cls := Classification{Source: SourceModel, Raw: resp.Text}
	var answer modelAnswer
	if err := llm.DecodeJSON(resp.Text, &answer); err != nil {
		c.logger.Debug("Unparseable model classification %q: %v", resp.Text, err)
		cls.Unroutable = true
		return cls, true
	}

	var tags []capability.Tag
	for _, name := range answer.Capabilities {
		tag, err := capability.ParseTag(name)
		if err != nil {
			cls.Rejected = append(cls.Rejected, name)
			continue
		}
		tags = append(tags, tag)
	}
	cls.Tags = capability.Distinct(tags)
	cls.Unroutable = len(cls.Tags) == 0
	return cls, true
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
