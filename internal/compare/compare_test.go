package compare_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/signalnine/skillbench/internal/compare"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers by request tag; the judge answer may depend on the
// prompt it was shown.
type scripted struct {
	with, without string
	withErr       error
	judge         func(prompt string) (string, error)
	judgeCalls    int
	judgeReqs     []completion.Request
}

func (s *scripted) Complete(ctx context.Context, r completion.Request) (*completion.Response, error) {
	switch r.Tag {
	case "quality:with_skill":
		if s.withErr != nil {
			return nil, s.withErr
		}
		return &completion.Response{Text: s.with, InputTokens: 50, OutputTokens: 20}, nil
	case "quality:baseline":
		return &completion.Response{Text: s.without, InputTokens: 10, OutputTokens: 15}, nil
	default:
		s.judgeCalls++
		s.judgeReqs = append(s.judgeReqs, r)
		text, err := s.judge(r.Prompt)
		if err != nil {
			return nil, err
		}
		return &completion.Response{Text: text}, nil
	}
}

// prefersSkill always picks whichever position holds the skill output.
func prefersSkill(prompt string) (string, error) {
	if strings.Index(prompt, "SKILLED") < strings.Index(prompt, "PLAIN") {
		return `{"verdict": "first", "reasoning": "more thorough"}`, nil
	}
	return "Sure.\n```json\n{\"verdict\": \"second\", \"reasoning\": \"more thorough\"}\n```", nil
}

func TestCompareUndoesCoinFlip(t *testing.T) {
	seen := map[bool]bool{}
	for seed := uint64(0); seed < 16; seed++ {
		s := &scripted{with: "SKILLED answer", without: "PLAIN answer", judge: prefersSkill}
		c := compare.New(compare.Opts{Completer: s, Model: "m", JudgeModel: "judge-m", Rand: rand.New(rand.NewPCG(seed, seed))})

		q := c.Compare(context.Background(), "Write a memo", "skill ctx")
		require.Equal(t, compare.WithSkill, q.JudgeVerdict, "seed %d", seed)
		assert.Equal(t, "more thorough", q.JudgeReasoning)
		seen[q.SkillFirst] = true
	}
	assert.True(t, seen[true] && seen[false], "both presentation orders should occur")
}

func TestCompareRecordsTokens(t *testing.T) {
	s := &scripted{with: "SKILLED", without: "PLAIN", judge: prefersSkill}
	q := compare.New(compare.Opts{Completer: s, Model: "m"}).Compare(context.Background(), "p", "ctx")
	assert.Equal(t, 50, q.WithSkillInputTokens)
	assert.Equal(t, 20, q.WithSkillOutputTokens)
	assert.Equal(t, 10, q.WithoutSkillInputTokens)
	assert.Equal(t, 15, q.WithoutSkillOutputTokens)
	assert.Equal(t, "m", q.JudgeModel)

	require.Len(t, s.judgeReqs, 1)
	require.NotNil(t, s.judgeReqs[0].Temperature)
	assert.Equal(t, 0.0, *s.judgeReqs[0].Temperature)
}

func TestCompareFailuresAreTies(t *testing.T) {
	tests := []struct {
		name   string
		s      *scripted
		reason string
		judged int
	}{
		{"skill call fails", &scripted{withErr: errors.New("boom"), without: "PLAIN"}, "with-skill completion failed: boom", 0},
		{"blank output", &scripted{with: " ", without: "PLAIN"}, "one or both outputs were empty", 0},
		{"judge transport", &scripted{with: "SKILLED", without: "PLAIN", judge: func(string) (string, error) {
			return "", errors.New("timeout")
		}}, "judge call failed: timeout", 1},
		{"judge gibberish", &scripted{with: "SKILLED", without: "PLAIN", judge: func(string) (string, error) {
			return "I like both.", nil
		}}, "could not parse judge response:", 1},
		{"unknown verdict", &scripted{with: "SKILLED", without: "PLAIN", judge: func(string) (string, error) {
			return `{"verdict": "maybe"}`, nil
		}}, "could not parse judge response: unknown verdict", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := compare.New(compare.Opts{Completer: tt.s}).Compare(context.Background(), "p", "ctx")
			assert.Equal(t, compare.Tie, q.JudgeVerdict)
			assert.True(t, strings.HasPrefix(q.JudgeReasoning, tt.reason), q.JudgeReasoning)
			assert.Equal(t, tt.judged, tt.s.judgeCalls)
		})
	}
}

func TestCompareMajorityOfRounds(t *testing.T) {
	answers := []string{`{"verdict":"tie"}`, `{"verdict":"1","reasoning":"r1"}`, `{"verdict":"response 1","reasoning":"r2"}`}
	i := 0
	s := &scripted{with: "SKILLED", without: "PLAIN", judge: func(string) (string, error) {
		a := answers[i]
		i++
		return a, nil
	}}
	c := compare.New(compare.Opts{Completer: s, Rounds: 3, Rand: rand.New(rand.NewPCG(1, 1))})
	q := c.Compare(context.Background(), "p", "ctx")

	assert.Equal(t, 3, s.judgeCalls)
	want := compare.WithoutSkill
	if q.SkillFirst {
		want = compare.WithSkill
	}
	assert.Equal(t, want, q.JudgeVerdict)
	assert.Equal(t, "r1", q.JudgeReasoning)
}

func TestCompareSplitVoteIsTie(t *testing.T) {
	answers := []string{`{"verdict":"a"}`, `{"verdict":"b"}`}
	i := 0
	s := &scripted{with: "SKILLED", without: "PLAIN", judge: func(string) (string, error) {
		a := answers[i]
		i++
		return a, nil
	}}
	q := compare.New(compare.Opts{Completer: s, Rounds: 2}).Compare(context.Background(), "p", "ctx")
	assert.Equal(t, compare.Tie, q.JudgeVerdict)
	assert.Contains(t, q.JudgeReasoning, "split")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in   string
		want compare.Pick
	}{
		{`{"verdict": "first", "reasoning": "x"}`, compare.PickFirst},
		{"```json\n{\"verdict\": \"Second\"}\n```", compare.PickSecond},
		{"My analysis: {\"verdict\": \"TIE\", \"reasoning\": \"uses {braces} inside\"} hope it helps", compare.PickTie},
		{`{"verdict": 2}`, compare.PickSecond},
		{`{"verdict": "Response A."}`, compare.PickFirst},
		{`Notes {not json} then {"verdict":"b"}`, compare.PickSecond},
	}
	for _, tt := range tests {
		got, _, err := compare.ParseVerdict(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, _, err := compare.ParseVerdict("no json here")
	assert.Error(t, err)
	_, _, err = compare.ParseVerdict(`{"reasoning": "forgot the verdict"}`)
	assert.Error(t, err)
}

func TestJudgePromptTruncates(t *testing.T) {
	long := strings.Repeat("x", compare.MaxOutputChars+500)
	p := compare.JudgePrompt("req", long, "short")
	assert.Contains(t, p, "[truncated from 8500 characters]")
	assert.NotContains(t, p, strings.Repeat("x", compare.MaxOutputChars+1))
	assert.Less(t, strings.Index(p, "Response 1:"), strings.Index(p, "Response 2:"))
}
