package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/report"
	"github.com/spf13/cobra"
)

var askInput struct {
	campaign     int64
	since        string
	until        string
	segment      string
	platform     string
	capabilities []string
	format       string
	timeout      time.Duration
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the report",
	Example: `  insight ask "how is campaign 12 doing on tiktok this week?"
  insight ask --capability trends "what's trending?"
  insight ask --campaign 12 --since "last monday" --format json "roas by day"`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.Int64Var(&askInput.campaign, "campaign", 0, "Campaign id (overrides one named in the question)")
	f.StringVar(&askInput.since, "since", "", `Window start, absolute or relative ("2026-10-01", "last monday")`)
	f.StringVar(&askInput.until, "until", "", "Inclusive window end")
	f.StringVar(&askInput.segment, "segment", "", "Audience segment, e.g. gen_z")
	f.StringVar(&askInput.platform, "platform", "", "Platform, e.g. tiktok")
	f.StringSliceVar(&askInput.capabilities, "capability", nil, "Skip classification and ask these capabilities (metrics, trends, creative)")
	f.StringVarP(&askInput.format, "format", "o", "markdown", "Output format: markdown or json")
	f.DurationVar(&askInput.timeout, "timeout", 0, "Overall deadline (default: router.request_timeout)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askInput.format != "markdown" && askInput.format != "json" {
		return fmt.Errorf("invalid --format %q (must be markdown or json)", askInput.format)
	}

	in := capability.QueryInput{
		Query:        strings.TrimSpace(strings.Join(args, " ")),
		Since:        askInput.since,
		Until:        askInput.until,
		CampaignID:   askInput.campaign,
		Segment:      askInput.segment,
		Platform:     askInput.platform,
		Capabilities: askInput.capabilities,
	}
	q, err := in.Build(time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if askInput.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, askInput.timeout)
		defer cancel()
	}

	rt, err := buildRuntime(ctx, runtimeOptions{configPath: configPath})
	if err != nil {
		return err
	}
	defer rt.close()

	rep, err := rt.router.Handle(ctx, q)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), rep, askInput.format)
}

func printReport(w io.Writer, rep report.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	md := rep.Markdown()
	if !isTerminal(w) {
		_, err := io.WriteString(w, md)
		return err
	}
	fmt.Fprintln(w, statusLine(rep))
	_, err := io.WriteString(w, renderMarkdown(md, terminalWidth(w)))
	return err
}

// statusLine summarizes section outcomes, e.g. "✓ metrics  ✗ trends (unreachable)".
func statusLine(rep report.Report) string {
	parts := []string{titleStyle.Render("insight")}
	for _, s := range rep.Sections {
		switch s.Status {
		case report.StatusOK:
			parts = append(parts, okStyle.Render("✓ "+s.Tag))
		case report.StatusEmpty:
			parts = append(parts, warningStyle.Render("○ "+s.Tag))
		case report.StatusUnroutable:
			parts = append(parts, warningStyle.Render("? unroutable"))
		default:
			label := "✗ " + s.Tag
			if s.Reason != "" {
				label += mutedStyle.Render(" (" + s.Reason + ")")
			}
			parts = append(parts, errorStyle.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}
