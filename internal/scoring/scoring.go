// Package scoring turns task results and quality comparisons into one
// weighted score and letter grade.
package scoring

import (
	"fmt"
	"math"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/compare"
	"github.com/signalnine/skillbench/internal/pricing"
)

// TaskMetric selects how task completion is measured.
type TaskMetric string

const (
	// MetricCriteria gives partial credit: passed criteria over all
	// verified criteria.
	MetricCriteria TaskMetric = "criteria"
	// MetricTasks counts whole tasks passed.
	MetricTasks TaskMetric = "tasks"
)

// NeutralWinRate is the win rate when no comparison was won or lost.
const NeutralWinRate = 0.5

// IncompleteSuffix marks a grade computed without quality data.
const IncompleteSuffix = ", incomplete"

type Weights struct {
	Task    float64 `yaml:"task_weight" json:"task_weight"`
	Quality float64 `yaml:"quality_weight" json:"quality_weight"`
}

var DefaultWeights = Weights{Task: 0.6, Quality: 0.4}

// normalized scales w to sum to 1, substituting the defaults when both
// are zero.
func (w Weights) normalized() Weights {
	if w.Task <= 0 && w.Quality <= 0 {
		return DefaultWeights
	}
	total := w.Task + w.Quality
	return Weights{Task: w.Task / total, Quality: w.Quality / total}
}

type Opts struct {
	Weights Weights
	Metric  TaskMetric
	// Pricing prices Model for the cost estimate; nil means pricing.Default.
	Pricing *pricing.Table
	Model   string
	// Seed makes the bootstrap interval reproducible. Negative is random.
	Seed int64
}

type DifficultyStats struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

type SkillScore struct {
	SkillName              string                                   `json:"skill_name"`
	TotalTasks             int                                      `json:"total_tasks"`
	TasksPassed            int                                      `json:"tasks_passed"`
	TaskPassRate           float64                                  `json:"task_pass_rate"`
	VerifiedCriteriaPassed int                                      `json:"verified_criteria_passed"`
	VerifiedCriteriaTotal  int                                      `json:"verified_criteria_total"`
	TaskCompletionRate     float64                                  `json:"task_completion_rate"`
	TaskMetric             TaskMetric                               `json:"task_metric"`
	TaskRateCI             ConfidenceInterval                       `json:"task_rate_ci"`
	TasksByDifficulty      map[benchmark.Difficulty]DifficultyStats `json:"tasks_by_difficulty"`
	VerificationLevels     map[benchmark.VerificationLevel]int      `json:"verification_levels"`
	QualityComparisons     int                                      `json:"quality_comparisons"`
	QualityWins            int                                      `json:"quality_wins"`
	QualityLosses          int                                      `json:"quality_losses"`
	QualityTies            int                                      `json:"quality_ties"`
	QualityWinRate         float64                                  `json:"quality_win_rate"`
	QualityTested          bool                                     `json:"quality_tested"`
	SelectivityTests       int                                      `json:"selectivity_tests"`
	SelectivityPassed      int                                      `json:"selectivity_passed"`
	SelectivityRate        float64                                  `json:"selectivity_rate"`
	SelectivityTested      bool                                     `json:"selectivity_tested"`
	OverallScore           float64                                  `json:"overall_score"`
	Grade                  string                                   `json:"grade"`
	AvgInputTokens         float64                                  `json:"avg_input_tokens"`
	AvgOutputTokens        float64                                  `json:"avg_output_tokens"`
	AvgTokens              float64                                  `json:"avg_tokens"`
	EstimatedCostPerUse    string                                   `json:"estimated_cost_per_use"`
	ExecutionTime          float64                                  `json:"execution_time"`
}

// Score aggregates one evaluation. Missing quality data lowers the ceiling
// rather than being guessed: the quality share of the score is left out
// and the grade is marked incomplete.
func Score(name string, results []*benchmark.TaskResult, comparisons []*compare.QualityComparison, opts Opts) *SkillScore {
	s := &SkillScore{
		SkillName:          name,
		TotalTasks:         len(results),
		TaskMetric:         opts.Metric,
		TasksByDifficulty:  map[benchmark.Difficulty]DifficultyStats{},
		VerificationLevels: map[benchmark.VerificationLevel]int{},
	}
	if s.TaskMetric == "" {
		s.TaskMetric = MetricCriteria
	}

	var inTokens, outTokens, calls int
	rates := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Passed {
			s.TasksPassed++
		}
		s.VerifiedCriteriaPassed += r.VerifiedPassed
		s.VerifiedCriteriaTotal += r.VerifiedTotal
		s.ExecutionTime += r.ExecutionTime
		rates = append(rates, taskRate(r, s.TaskMetric))

		d := s.TasksByDifficulty[r.Difficulty]
		d.Total++
		if r.Passed {
			d.Passed++
		}
		s.TasksByDifficulty[r.Difficulty] = d
		if r.VerificationLevel != "" {
			s.VerificationLevels[r.VerificationLevel]++
		}

		inTokens += r.InputTokens
		outTokens += r.OutputTokens
		calls++
	}
	s.TaskPassRate = ratio(s.TasksPassed, s.TotalTasks)
	s.TaskCompletionRate = TaskRate(results, s.TaskMetric)
	s.TaskRateCI = BootstrapCI(rates, 0.95, opts.Seed)

	for _, c := range comparisons {
		s.QualityComparisons++
		switch c.JudgeVerdict {
		case compare.WithSkill:
			s.QualityWins++
		case compare.WithoutSkill:
			s.QualityLosses++
		case compare.Tie:
			s.QualityTies++
		}
		inTokens += c.WithSkillInputTokens + c.WithoutSkillInputTokens
		outTokens += c.WithSkillOutputTokens + c.WithoutSkillOutputTokens
		calls += 2
	}
	s.QualityTested = len(comparisons) > 0
	s.QualityWinRate = WinRate(s.QualityWins, s.QualityLosses)

	s.OverallScore = Overall(s.TaskCompletionRate, s.QualityWinRate, s.QualityTested, opts.Weights)
	s.Grade = Grade(s.OverallScore, s.QualityTested)

	if calls > 0 {
		s.AvgInputTokens = float64(inTokens) / float64(calls)
		s.AvgOutputTokens = float64(outTokens) / float64(calls)
	}
	s.AvgTokens = s.AvgInputTokens + s.AvgOutputTokens
	table := opts.Pricing
	if table == nil {
		table = pricing.Default()
	}
	s.EstimatedCostPerUse = pricing.FormatUSD(table.CostPerUse(opts.Model, s.AvgInputTokens, s.AvgOutputTokens))
	return s
}

// AddSelectivity records how often the skill held back on unrelated
// prompts. It is reported alongside the score and does not change it.
func (s *SkillScore) AddSelectivity(results []*benchmark.SelectivityResult) {
	s.SelectivityTests = len(results)
	s.SelectivityPassed = 0
	for _, r := range results {
		if r.Passed {
			s.SelectivityPassed++
		}
	}
	s.SelectivityRate = ratio(s.SelectivityPassed, s.SelectivityTests)
	s.SelectivityTested = len(results) > 0
}

// TaskRate is the task completion rate under metric. It is 0 when there
// is nothing to measure.
func TaskRate(results []*benchmark.TaskResult, metric TaskMetric) float64 {
	if metric == MetricTasks {
		passed := 0
		for _, r := range results {
			if r.Passed {
				passed++
			}
		}
		return ratio(passed, len(results))
	}
	var passed, total int
	for _, r := range results {
		passed += r.VerifiedPassed
		total += r.VerifiedTotal
	}
	return ratio(passed, total)
}

// taskRate is one task's contribution, used for the bootstrap interval.
func taskRate(r *benchmark.TaskResult, metric TaskMetric) float64 {
	if metric == MetricTasks || r.VerifiedTotal == 0 {
		if r.Passed {
			return 1
		}
		return 0
	}
	return ratio(r.VerifiedPassed, r.VerifiedTotal)
}

// WinRate is wins over contested comparisons; ties are not contested.
func WinRate(wins, losses int) float64 {
	contested := wins + losses
	if contested == 0 {
		return NeutralWinRate
	}
	return float64(wins) / float64(contested)
}

// Overall combines the rates into a 0-100 score. Without quality data only
// the task share counts.
func Overall(taskRate, winRate float64, qualityTested bool, w Weights) float64 {
	w = w.normalized()
	score := taskRate * w.Task
	if qualityTested {
		score += winRate * w.Quality
	}
	return math.Max(0, math.Min(100, 100*score))
}

func Grade(score float64, qualityTested bool) string {
	var g string
	switch {
	case score >= 90:
		g = "A"
	case score >= 80:
		g = "B"
	case score >= 70:
		g = "C"
	case score >= 60:
		g = "D"
	default:
		g = "F"
	}
	if !qualityTested {
		g += IncompleteSuffix
	}
	return g
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Summary is a one-line description of a score.
func (s *SkillScore) Summary() string {
	return fmt.Sprintf("%s: %.1f (%s), %d/%d tasks, quality %d-%d-%d, %s per use",
		s.SkillName, s.OverallScore, s.Grade, s.TasksPassed, s.TotalTasks,
		s.QualityWins, s.QualityLosses, s.QualityTies, s.EstimatedCostPerUse)
}
