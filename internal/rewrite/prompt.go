package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/signalnine/skilltune/internal/result"
)

// Request is everything the rewriter may see. History is blinded by
// type: it cannot carry held-out results.
type Request struct {
	SkillName          string
	SkillContent       string
	CurrentDescription string
	Results            []result.QueryResult
	Summary            result.Summary
	History            []result.BlindedIteration
	Iteration          int
}

// BuildPrompt renders the rewrite prompt for req.
func BuildPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are optimizing a skill description for a Claude Code skill called %q. A "skill" is sort of like a prompt, but with progressive disclosure -- there's a title and description that Claude sees when deciding whether to use the skill, and then if it does use the skill, it reads the .md file which has lots more details and potentially links to other resources in the skill folder like helper files and scripts and additional documentation or examples.

The description appears in Claude's "available_skills" list. When a user sends a query, Claude decides whether to invoke the skill based solely on the title and on this description. Your goal is to write a description that triggers for relevant queries, and doesn't trigger for irrelevant ones.

Here's the current description:
<current_description>
"%s"
</current_description>

Current scores (Train: %d/%d):
<scores_summary>
`, req.SkillName, req.CurrentDescription, req.Summary.Passed, req.Summary.Total)

	var missed, falsePos []result.QueryResult
	for _, r := range req.Results {
		if r.Pass {
			continue
		}
		if r.ShouldTrigger {
			missed = append(missed, r)
		} else {
			falsePos = append(falsePos, r)
		}
	}
	if len(missed) > 0 {
		b.WriteString("FAILED TO TRIGGER (should have triggered but didn't):\n")
		for _, r := range missed {
			fmt.Fprintf(&b, "  - %q (triggered %d/%d times)\n", r.Query, r.Triggers, r.Runs)
		}
		b.WriteString("\n")
	}
	if len(falsePos) > 0 {
		b.WriteString("FALSE TRIGGERS (triggered but shouldn't have):\n")
		for _, r := range falsePos {
			fmt.Fprintf(&b, "  - %q (triggered %d/%d times)\n", r.Query, r.Triggers, r.Runs)
		}
		b.WriteString("\n")
	}

	if len(req.History) > 0 {
		b.WriteString("PREVIOUS ATTEMPTS (do NOT repeat these, try something structurally different):\n\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "<attempt train=%d/%d>\n", h.TrainSummary.Passed, h.TrainSummary.Total)
			fmt.Fprintf(&b, "Description: %q\n", h.Description)
			if len(h.TrainResults) > 0 {
				b.WriteString("Train results:\n")
				for _, r := range h.TrainResults {
					status := "FAIL"
					if r.Pass {
						status = "PASS"
					}
					fmt.Fprintf(&b, "  [%s] %q (triggered %d/%d)\n", status, clip(r.Query, 80), r.Triggers, r.Runs)
				}
			}
			b.WriteString("</attempt>\n\n")
		}
	}

	fmt.Fprintf(&b, `</scores_summary>

Skill content (for context on what the skill does):
<skill_content>
%s
</skill_content>

Based on the failures, write a new and improved description that is more likely to trigger correctly. When I say "based on the failures", it's a bit of a tricky line to walk because we don't want to overfit to the specific cases you're seeing. So what I DON'T want you to do is produce an ever-expanding list of specific queries that this skill should or shouldn't trigger for. Instead, try to generalize from the failures to broader categories of user intent and situations where this skill would be useful or not useful. The reason for this is twofold:

1. Avoid overfitting
2. The list might get loooong and it's injected into ALL queries and there might be a lot of skills, so we don't want to blow too much space on any given description.

Concretely, your description should not be more than about 100-200 words, even if that comes at the cost of accuracy.

Here are some tips that we've found to work well in writing these descriptions:
- The skill should be phrased in the imperative -- "Use this skill for" rather than "this skill does"
- The skill description should focus on the user's intent, what they are trying to achieve, vs. the implementation details of how the skill works.
- The description competes with other skills for Claude's attention, so make it distinctive and immediately recognizable.
- If you're getting lots of failures after repeated attempts, change things up. Try different sentence structures or wordings.

I'd encourage you to be creative and mix up the style in different iterations since you'll have multiple opportunities to try different approaches and we'll just grab the highest-scoring one at the end.

Please respond with only the new description text in <new_description> tags, nothing else.`, req.SkillContent)
	return b.String()
}

// ShortenPrompt asks for a version of an over-long description that fits
// within limit characters.
func ShortenPrompt(length, limit int) string {
	return fmt.Sprintf("Your description is %d characters, which exceeds the hard %d character limit. "+
		"Please rewrite it to be under %d characters while preserving the most important trigger words and intent coverage. "+
		"Respond with only the new description in <new_description> tags.", length, limit, limit)
}

var descriptionTag = regexp.MustCompile(`(?s)<new_description>(.*?)</new_description>`)

// ParseDescription extracts the description from a model response. Without
// tags the whole response is used. Surrounding quotes are dropped.
func ParseDescription(text string) string {
	if m := descriptionTag.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	return strings.Trim(strings.TrimSpace(text), `"`)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
