package agent

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

// SystemPrompt 决策模型的系统提示词
const SystemPrompt = `You drive a web browser for a sales prospecting campaign.
Each turn you receive the campaign goal, the steps already taken with their outcomes,
the current URL, the interactive elements of the page and a markdown rendering of the page.

Reply with exactly one JSON object and nothing else:
{"done": false, "summary": "<why this action>", "action": {"kind": "click|fill|press|wait", "locator": "<element>", "value": "<text for fill>", "key": "<key for press>", "duration": "<ms for wait>"}}

Rules:
- "locator" is preferably the element index in square brackets from the element list, e.g. "[12]".
  A CSS selector, an XPath starting with "/", or the visible text of the element also work.
- To search, fill the search box and then press Enter on it.
- Do not repeat an action that just failed with the same locator; try a different element.
- When the goal is reached, reply {"done": true, "summary": "<what was achieved>"}.`

// maxStepsInPrompt 提示词中保留的最近步骤数
const maxStepsInPrompt = 15

// PromptBuilder 组装每一轮的用户提示词
type PromptBuilder struct {
	converter    *md.Converter
	maxPageChars int
}

func NewPromptBuilder(maxPageChars int) *PromptBuilder {
	if maxPageChars <= 0 {
		maxPageChars = 6000
	}
	return &PromptBuilder{
		converter:    md.NewConverter("", true, nil),
		maxPageChars: maxPageChars,
	}
}

// Build 生成提示词。页面转换失败时省略页面内容而不是报错。
func (b *PromptBuilder) Build(in DecisionInput) string {
	var sb strings.Builder

	sb.WriteString("## Goal\n")
	sb.WriteString(strings.TrimSpace(in.Prompt))
	sb.WriteString("\n\n")

	if in.PageURL != "" {
		fmt.Fprintf(&sb, "## Current URL\n%s\n\n", in.PageURL)
	}

	sb.WriteString("## Steps so far\n")
	if len(in.Steps) == 0 {
		sb.WriteString("(none)\n")
	}
	steps := in.Steps
	if len(steps) > maxStepsInPrompt {
		fmt.Fprintf(&sb, "(%d earlier steps omitted)\n", len(steps)-maxStepsInPrompt)
		steps = steps[len(steps)-maxStepsInPrompt:]
	}
	for _, s := range steps {
		fmt.Fprintf(&sb, "%d. %s %q", s.Sequence, s.Action.Kind, s.Action.Locator)
		if s.Action.Value != "" {
			fmt.Fprintf(&sb, " value=%q", s.Action.Value)
		}
		if s.Action.Key != "" {
			fmt.Fprintf(&sb, " key=%s", s.Action.Key)
		}
		fmt.Fprintf(&sb, " -> %s\n", s.Outcome)
	}
	sb.WriteString("\n")

	sb.WriteString("## Interactive elements\n")
	sb.WriteString(snapshot.SerializeToSimpleText(in.Snapshot))

	if page := b.pageMarkdown(in.PageHTML); page != "" {
		sb.WriteString("\n## Page content\n")
		sb.WriteString(page)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *PromptBuilder) pageMarkdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	text, err := b.converter.ConvertString(html)
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(text), b.maxPageChars)
}
