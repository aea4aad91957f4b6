// Package compare runs A/B quality comparisons between a skill-assisted
// completion and a baseline, judged by a second model call with the
// presentation order randomized.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/signalnine/skillbench/internal/completion"
)

type Verdict string

const (
	WithSkill    Verdict = "with_skill"
	WithoutSkill Verdict = "without_skill"
	Tie          Verdict = "tie"
)

// QualityComparison is the record of one A/B comparison. An empty
// JudgeVerdict means the pair was never judged.
type QualityComparison struct {
	Prompt                   string  `json:"prompt"`
	WithSkillOutput          string  `json:"with_skill_output"`
	WithoutSkillOutput       string  `json:"without_skill_output"`
	WithSkillInputTokens     int     `json:"with_skill_input_tokens"`
	WithSkillOutputTokens    int     `json:"with_skill_output_tokens"`
	WithoutSkillInputTokens  int     `json:"without_skill_input_tokens"`
	WithoutSkillOutputTokens int     `json:"without_skill_output_tokens"`
	JudgeVerdict             Verdict `json:"judge_verdict,omitempty"`
	JudgeReasoning           string  `json:"judge_reasoning"`
	JudgeModel               string  `json:"judge_model,omitempty"`
	// SkillFirst records whether the skill output was shown as Response 1.
	SkillFirst bool `json:"skill_first"`
}

// Judged reports whether a verdict was reached, ties included.
func (q *QualityComparison) Judged() bool { return q.JudgeVerdict != "" }

type Opts struct {
	Completer completion.Completer
	Model     string
	MaxTokens int
	// Judge defaults to Completer.
	Judge      completion.Completer
	JudgeModel string
	// Rounds is how many times the judge is asked; the majority wins.
	Rounds int
	Pacer  *completion.Pacer
	// Rand drives the presentation coin flip. Nil uses the global source.
	Rand   *rand.Rand
	Logger *slog.Logger
}

type Comparator struct {
	opts Opts
	log  *slog.Logger
}

func New(opts Opts) *Comparator {
	if opts.Judge == nil {
		opts.Judge = opts.Completer
	}
	if opts.JudgeModel == "" {
		opts.JudgeModel = opts.Model
	}
	if opts.Rounds < 1 {
		opts.Rounds = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Comparator{opts: opts, log: log}
}

// Compare runs prompt with and without skillContext and judges the pair.
// Failures never escape: they become a tie with the reason recorded.
func (c *Comparator) Compare(ctx context.Context, prompt, skillContext string) *QualityComparison {
	q := &QualityComparison{Prompt: prompt, JudgeModel: c.opts.JudgeModel}

	with, withErr := c.complete(ctx, prompt, skillContext, "quality:with_skill")
	if with != nil {
		q.WithSkillOutput = with.Text
		q.WithSkillInputTokens = with.InputTokens
		q.WithSkillOutputTokens = with.OutputTokens
	}
	without, withoutErr := c.complete(ctx, prompt, "", "quality:baseline")
	if without != nil {
		q.WithoutSkillOutput = without.Text
		q.WithoutSkillInputTokens = without.InputTokens
		q.WithoutSkillOutputTokens = without.OutputTokens
	}

	switch {
	case withErr != nil:
		return q.tie("with-skill completion failed: %v", withErr)
	case withoutErr != nil:
		return q.tie("baseline completion failed: %v", withoutErr)
	case strings.TrimSpace(q.WithSkillOutput) == "" || strings.TrimSpace(q.WithoutSkillOutput) == "":
		return q.tie("one or both outputs were empty")
	}

	q.SkillFirst = c.flip()
	first, second := q.WithSkillOutput, q.WithoutSkillOutput
	if !q.SkillFirst {
		first, second = second, first
	}
	pick, reasoning, err := c.judge(ctx, JudgePrompt(prompt, first, second))
	if err != nil {
		c.log.Warn("judge failed", "err", err)
		return q.tie("%v", err)
	}
	q.JudgeVerdict = resolve(pick, q.SkillFirst)
	q.JudgeReasoning = reasoning
	return q
}

func (q *QualityComparison) tie(format string, args ...any) *QualityComparison {
	q.JudgeVerdict = Tie
	q.JudgeReasoning = fmt.Sprintf(format, args...)
	return q
}

// resolve maps a positional pick back to the skill/baseline verdict.
func resolve(p Pick, skillFirst bool) Verdict {
	switch {
	case p == PickTie:
		return Tie
	case (p == PickFirst) == skillFirst:
		return WithSkill
	default:
		return WithoutSkill
	}
}

func (c *Comparator) flip() bool {
	if c.opts.Rand != nil {
		return c.opts.Rand.IntN(2) == 0
	}
	return rand.IntN(2) == 0
}

func (c *Comparator) complete(ctx context.Context, prompt, system, tag string) (*completion.Response, error) {
	if err := c.opts.Pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return c.opts.Completer.Complete(ctx, completion.Request{
		Model:     c.opts.Model,
		System:    system,
		Prompt:    prompt,
		MaxTokens: c.opts.MaxTokens,
		Tag:       tag,
	})
}

type judgeError struct {
	transport bool
	err       error
}

func (e *judgeError) Error() string {
	if e.transport {
		return "judge call failed: " + e.err.Error()
	}
	return "could not parse judge response: " + e.err.Error()
}

func (e *judgeError) Unwrap() error { return e.err }

// judge asks for a verdict Rounds times and returns the majority pick.
// A split vote is a tie. Only when every round fails is an error returned.
func (c *Comparator) judge(ctx context.Context, prompt string) (Pick, string, error) {
	votes := map[Pick]int{}
	reasons := map[Pick]string{}
	var lastErr error
	for i := 0; i < c.opts.Rounds; i++ {
		pick, reasoning, err := c.judgeOnce(ctx, prompt)
		if err != nil {
			c.log.Debug("judge round failed", "round", i+1, "err", err)
			lastErr = err
			continue
		}
		votes[pick]++
		if _, ok := reasons[pick]; !ok {
			reasons[pick] = reasoning
		}
	}
	if len(votes) == 0 {
		return PickTie, "", lastErr
	}

	best, bestVotes, split := PickTie, -1, false
	for _, p := range []Pick{PickFirst, PickSecond, PickTie} {
		switch n := votes[p]; {
		case n > bestVotes:
			best, bestVotes, split = p, n, false
		case n == bestVotes && n > 0:
			split = true
		}
	}
	if split {
		return PickTie, fmt.Sprintf("judge rounds split: %d first, %d second, %d tie",
			votes[PickFirst], votes[PickSecond], votes[PickTie]), nil
	}
	return best, reasons[best], nil
}

func (c *Comparator) judgeOnce(ctx context.Context, prompt string) (Pick, string, error) {
	if err := c.opts.Pacer.Wait(ctx); err != nil {
		return PickTie, "", &judgeError{transport: true, err: err}
	}
	resp, err := c.opts.Judge.Complete(ctx, completion.Request{
		Model:       c.opts.JudgeModel,
		Prompt:      prompt,
		MaxTokens:   1024,
		Temperature: completion.Temperature(0),
		Tag:         "judge",
	})
	if err != nil {
		return PickTie, "", &judgeError{transport: true, err: err}
	}
	pick, reasoning, err := ParseVerdict(resp.Text)
	if err != nil {
		return PickTie, "", &judgeError{err: err}
	}
	return pick, reasoning, nil
}
