package rewrite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/pricing"
	"github.com/signalnine/skilltune/internal/result"
)

// MaxDescriptionChars is the hard ceiling the agent enforces on skill
// descriptions.
const MaxDescriptionChars = 1024

var ErrEmptyResponse = errors.New("rewriter returned an empty description")

// Transcript records one rewrite for later inspection.
type Transcript struct {
	Iteration         int     `json:"iteration"`
	Prompt            string  `json:"prompt"`
	Thinking          string  `json:"thinking"`
	Response          string  `json:"response"`
	ParsedDescription string  `json:"parsed_description"`
	CharCount         int     `json:"char_count"`
	OverLimit         bool    `json:"over_limit"`
	ShortenPrompt     string  `json:"rewrite_prompt,omitempty"`
	ShortenThinking   string  `json:"rewrite_thinking,omitempty"`
	ShortenResponse   string  `json:"rewrite_response,omitempty"`
	ShortenedDesc     string  `json:"rewrite_description,omitempty"`
	ShortenedChars    int     `json:"rewrite_char_count,omitempty"`
	FinalDescription  string  `json:"final_description"`
	InputTokens       int64   `json:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens"`
	CostUSD           float64 `json:"cost_usd"`
}

// Improver turns training results into a new description.
type Improver struct {
	Model Model
	// MaxChars defaults to MaxDescriptionChars.
	MaxChars int
	// LogDir receives improve_iter_N.json transcripts when set.
	LogDir string
	// Pricing, Provider and ModelName feed the cost estimate.
	Pricing   *pricing.Table
	Provider  string
	ModelName string
	Logger    *log.Logger
}

// Improve asks for a new description. An over-long answer gets exactly one
// shortening round-trip whose result is used as is.
func (im *Improver) Improve(ctx context.Context, req *Request) (string, *Transcript, error) {
	logger := im.Logger
	if logger == nil {
		logger = logging.New("rewrite")
	}
	limit := im.MaxChars
	if limit <= 0 {
		limit = MaxDescriptionChars
	}

	prompt := BuildPrompt(req)
	conv := []Message{{Role: RoleUser, Content: prompt}}
	first, err := im.Model.Complete(ctx, conv)
	if err != nil {
		return "", nil, fmt.Errorf("requesting rewrite: %w", err)
	}

	desc := ParseDescription(first.Text)
	tr := &Transcript{
		Iteration:         req.Iteration,
		Prompt:            prompt,
		Thinking:          first.Thinking,
		Response:          first.Text,
		ParsedDescription: desc,
		CharCount:         utf8.RuneCountInString(desc),
		InputTokens:       first.InputTokens,
		OutputTokens:      first.OutputTokens,
	}
	tr.OverLimit = tr.CharCount > limit

	if tr.OverLimit {
		logger.Info("description over limit, asking for a shorter one", "chars", tr.CharCount, "limit", limit)
		tr.ShortenPrompt = ShortenPrompt(tr.CharCount, limit)
		conv = append(conv,
			Message{Role: RoleAssistant, Content: first.Text},
			Message{Role: RoleUser, Content: tr.ShortenPrompt},
		)
		second, err := im.Model.Complete(ctx, conv)
		if err != nil {
			return "", tr, fmt.Errorf("requesting shortened rewrite: %w", err)
		}
		desc = ParseDescription(second.Text)
		tr.ShortenThinking = second.Thinking
		tr.ShortenResponse = second.Text
		tr.ShortenedDesc = desc
		tr.ShortenedChars = utf8.RuneCountInString(desc)
		tr.InputTokens += second.InputTokens
		tr.OutputTokens += second.OutputTokens
	}

	tr.FinalDescription = desc
	if im.Pricing != nil {
		tr.CostUSD = im.Pricing.Cost(im.Provider, im.ModelName, int(tr.InputTokens), int(tr.OutputTokens))
	}

	if im.LogDir != "" {
		path := filepath.Join(im.LogDir, fmt.Sprintf("improve_iter_%d.json", req.Iteration))
		if err := result.WriteJSON(path, tr); err != nil {
			logger.Warn("writing rewrite transcript", "err", err)
		}
	}

	if desc == "" {
		return "", tr, ErrEmptyResponse
	}
	logger.Debug("rewrote description", "iteration", req.Iteration, "chars", utf8.RuneCountInString(desc),
		"input_tokens", tr.InputTokens, "output_tokens", tr.OutputTokens, "cost_usd", tr.CostUSD)
	return desc, tr, nil
}
