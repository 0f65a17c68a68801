package creative

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/moolen/insight/internal/capability"
)

// ExtractedText is the copy found in an image.
type ExtractedText struct {
	Headline      string   `json:"headline"`
	Subtext       string   `json:"subtext"`
	CTA           string   `json:"cta"`
	PromoMessages []string `json:"promo_messages"`
}

// Analysis is the structured reading of one image.
type Analysis struct {
	VisualStyle    string        `json:"visual_style"`
	DominantColors []string      `json:"dominant_colors"`
	HasFaces       bool          `json:"has_faces"`
	NumPeople      int           `json:"num_people"`
	AgeStyle       string        `json:"age_style"`
	TextDensity    string        `json:"text_density"`
	ExtractedText  ExtractedText `json:"extracted_text"`
	EmotionalTone  string        `json:"emotional_tone"`
	LayoutType     string        `json:"layout_type"`
	PlatformFit    string        `json:"platform_fit"`
	Description    string        `json:"description"`
}

const analysisPrompt = `Analyze this advertising image. Answer with a single JSON object and nothing else:
{
  "visual_style": "corporate|fun|premium|minimalist|lifestyle|product_focused",
  "dominant_colors": ["..."],
  "has_faces": true,
  "num_people": 0,
  "age_style": "youthful|office|family|mixed|none",
  "text_density": "low|medium|high",
  "extracted_text": {"headline": "", "subtext": "", "cta": "", "promo_messages": []},
  "emotional_tone": "playful|serious|urgent|calm|energetic",
  "layout_type": "centered|split|grid|minimal",
  "platform_fit": "facebook|instagram|tiktok|youtube|generic",
  "description": "one or two sentences"
}
Transcribe text exactly as printed, including Thai.`

const analysisSystem = "You are a creative analyst for digital advertising in Thailand. Describe only what is visible."

// Creative is one row of the creatives table plus its analysis.
type Creative struct {
	ID       int64     `json:"creative_id"`
	ImageURL string    `json:"image_url"`
	Platform string    `json:"platform"`
	Format   string    `json:"format"`
	Status   string    `json:"status"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Gallery is the creative payload.
type Gallery struct {
	CampaignID int64      `json:"campaign_id,omitempty"`
	Creatives  []Creative `json:"creatives"`

	// Hint explains an empty gallery.
	Hint  string `json:"hint,omitempty"`
	Model string `json:"model,omitempty"`
}

// Tag implements capability.Payload.
func (g *Gallery) Tag() capability.Tag { return capability.Creative }

// Empty implements capability.Payload.
func (g *Gallery) Empty() bool { return len(g.Creatives) == 0 }

func (g *Gallery) analyzed() []Creative {
	var out []Creative
	for _, c := range g.Creatives {
		if c.Analysis != nil {
			out = append(out, c)
		}
	}
	return out
}

// Metadata implements capability.MetadataProvider.
func (g *Gallery) Metadata() map[string]string {
	md := map[string]string{
		"source":    "creatives",
		"creatives": strconv.Itoa(len(g.Creatives)),
		"analyzed":  strconv.Itoa(len(g.analyzed())),
	}
	if g.CampaignID > 0 {
		md["campaign_id"] = strconv.FormatInt(g.CampaignID, 10)
	}
	if g.Model != "" {
		md["model"] = g.Model
	}
	return md
}

// Render implements capability.Payload.
func (g *Gallery) Render() string {
	if g.Empty() {
		return g.Hint
	}
	analyzed := g.analyzed()

	var b strings.Builder
	fmt.Fprintf(&b, "**Campaign %d:** %d of %d creatives analyzed\n", g.CampaignID, len(analyzed), len(g.Creatives))

	if len(analyzed) > 0 {
		b.WriteString("\n| Creative | Platform | Format | Style | Tone | Colors | People | Text | Headline | CTA |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
		for _, c := range analyzed {
			a := c.Analysis
			fmt.Fprintf(&b, "| #%d | %s | %s | %s | %s | %s | %d | %s | %s | %s |\n",
				c.ID, cell(c.Platform), cell(c.Format), cell(a.VisualStyle), cell(a.EmotionalTone),
				cell(strings.Join(a.DominantColors, ", ")), a.NumPeople, cell(a.TextDensity),
				cell(a.ExtractedText.Headline), cell(a.ExtractedText.CTA))
		}

		b.WriteString("\n**Patterns**\n\n")
		fmt.Fprintf(&b, "- Visual style: %s\n", tally(analyzed, func(a *Analysis) []string { return []string{a.VisualStyle} }))
		fmt.Fprintf(&b, "- Emotional tone: %s\n", tally(analyzed, func(a *Analysis) []string { return []string{a.EmotionalTone} }))
		fmt.Fprintf(&b, "- Dominant colors: %s\n", tally(analyzed, func(a *Analysis) []string { return a.DominantColors }))
		fmt.Fprintf(&b, "- Text density: %s\n", tally(analyzed, func(a *Analysis) []string { return []string{a.TextDensity} }))
		faces := 0
		for _, c := range analyzed {
			if c.Analysis.HasFaces {
				faces++
			}
		}
		fmt.Fprintf(&b, "- Faces: %d of %d creatives\n", faces, len(analyzed))

		b.WriteString("\n**Descriptions**\n\n")
		for _, c := range analyzed {
			fmt.Fprintf(&b, "- #%d: %s\n", c.ID, oneLine(c.Analysis.Description))
		}
	}

	var failed []string
	for _, c := range g.Creatives {
		if c.Error != "" {
			failed = append(failed, fmt.Sprintf("#%d (%s)", c.ID, c.Error))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n_Not analyzed: %s_\n", strings.Join(failed, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// tally counts values across analyses, most frequent first, ties by name.
func tally(cs []Creative, values func(*Analysis) []string) string {
	counts := make(map[string]int)
	for _, c := range cs {
		for _, v := range values(c.Analysis) {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				counts[v]++
			}
		}
	}
	if len(counts) == 0 {
		return "n/a"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > 6 {
		keys = keys[:6]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d)", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
