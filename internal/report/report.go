// Package report renders stored evaluation summaries as a table, markdown
// or JSON, and a styled grade card for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/pricing"
	"github.com/signalnine/skillbench/internal/result"
	"github.com/signalnine/skillbench/internal/scoring"
)

var numbers = message.NewPrinter(language.English)

// nameWidth caps the skill column of the table, in terminal cells.
const nameWidth = 32

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true) // yellow
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)  // red
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))             // gray
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Generate reads every skill summary under runDir and writes them, best
// score first. A pricing file, when given, reprices the cost estimate
// using the model recorded for each run.
func Generate(runDir, format string, w io.Writer, pricingPath ...string) error {
	summaries, err := collectSummaries(runDir)
	if err != nil {
		return err
	}
	if len(pricingPath) > 0 && pricingPath[0] != "" {
		if err := enrichCosts(summaries, pricingPath[0]); err != nil {
			return err
		}
	}
	scores := make([]*scoring.SkillScore, len(summaries))
	for i, s := range summaries {
		scores[i] = s.score
	}
	Rank(scores)

	return Write(scores, format, w)
}

// Write renders scores in format: table (default), markdown or json.
func Write(scores []*scoring.SkillScore, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(scores, w)
	case "json":
		return writeJSON(scores, w)
	default:
		return writeTable(scores, w)
	}
}

type storedSummary struct {
	dir   string
	score *scoring.SkillScore
}

func collectSummaries(runDir string) ([]storedSummary, error) {
	dirs, err := result.FindSkillDirs(runDir)
	if err != nil {
		return nil, err
	}
	var out []storedSummary
	for _, dir := range dirs {
		s, err := result.ReadSummary(filepath.Join(dir, result.SummaryFile))
		if err != nil {
			slog.Debug("skipping run without summary", "dir", dir, "err", err)
			continue
		}
		out = append(out, storedSummary{dir: dir, score: s})
	}
	return out, nil
}

func enrichCosts(summaries []storedSummary, pricingPath string) error {
	table, err := pricing.Load(pricingPath)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		meta, err := result.ReadMeta(s.dir)
		if err != nil {
			continue
		}
		cost := table.CostPerUse(meta.Model, s.score.AvgInputTokens, s.score.AvgOutputTokens)
		s.score.EstimatedCostPerUse = pricing.FormatUSD(cost)
	}
	return nil
}

// Rank orders scores by overall score, highest first, then by name.
func Rank(scores []*scoring.SkillScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].OverallScore != scores[j].OverallScore {
			return scores[i].OverallScore > scores[j].OverallScore
		}
		return scores[i].SkillName < scores[j].SkillName
	})
}

func quality(s *scoring.SkillScore) string {
	if !s.QualityTested {
		return "untested"
	}
	return fmt.Sprintf("%d-%d-%d", s.QualityWins, s.QualityLosses, s.QualityTies)
}

func writeTable(scores []*scoring.SkillScore, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tSCORE\tGRADE\tTASKS\tCRITERIA\tQUALITY W-L-T\tAVG TOKENS\tCOST/USE")
	fmt.Fprintln(tw, strings.Repeat("-", 96))
	for _, s := range scores {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%d/%d\t%d/%d\t%s\t%s\t%s\n",
			runewidth.Truncate(s.SkillName, nameWidth, "…"), s.OverallScore, s.Grade, s.TasksPassed, s.TotalTasks,
			s.VerifiedCriteriaPassed, s.VerifiedCriteriaTotal, quality(s),
			numbers.Sprintf("%d", int(s.AvgTokens)), s.EstimatedCostPerUse)
	}
	return tw.Flush()
}

func writeMarkdown(scores []*scoring.SkillScore, w io.Writer) error {
	fmt.Fprintln(w, "| Skill | Score | Grade | Tasks | Criteria | Quality W-L-T | Avg Tokens | Cost/Use |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range scores {
		fmt.Fprintf(w, "| %s | %.1f | %s | %d/%d | %d/%d | %s | %s | %s |\n",
			s.SkillName, s.OverallScore, s.Grade, s.TasksPassed, s.TotalTasks,
			s.VerifiedCriteriaPassed, s.VerifiedCriteriaTotal, quality(s),
			numbers.Sprintf("%d", int(s.AvgTokens)), s.EstimatedCostPerUse)
	}
	return nil
}

func writeJSON(scores []*scoring.SkillScore, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(scores)
}

func gradeStyle(grade string) lipgloss.Style {
	if grade == "" {
		return dimStyle
	}
	switch grade[:1] {
	case "A", "B":
		return goodStyle
	case "C", "D":
		return warnStyle
	default:
		return badStyle
	}
}

// Card renders one score as a bordered terminal summary.
func Card(s *scoring.SkillScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %s\n", headerStyle.Render(s.SkillName),
		gradeStyle(s.Grade).Render(s.Grade), fmt.Sprintf("%.1f/100", s.OverallScore))
	fmt.Fprintf(&b, "tasks     %d/%d passed, %d/%d criteria (%.0f%%, 95%% CI %.0f-%.0f%%)\n",
		s.TasksPassed, s.TotalTasks, s.VerifiedCriteriaPassed, s.VerifiedCriteriaTotal,
		s.TaskCompletionRate*100, s.TaskRateCI.Lower*100, s.TaskRateCI.Upper*100)
	for _, d := range []benchmark.Difficulty{benchmark.Easy, benchmark.Medium, benchmark.Hard} {
		if st, ok := s.TasksByDifficulty[d]; ok {
			fmt.Fprintf(&b, "  %-7s %d/%d\n", d, st.Passed, st.Total)
		}
	}
	if s.QualityTested {
		fmt.Fprintf(&b, "quality   %d wins, %d losses, %d ties (win rate %.0f%%)\n",
			s.QualityWins, s.QualityLosses, s.QualityTies, s.QualityWinRate*100)
	} else {
		fmt.Fprintln(&b, dimStyle.Render("quality   not tested"))
	}
	if s.SelectivityTested {
		fmt.Fprintf(&b, "selective %d/%d unrelated prompts left alone (%.0f%%)\n",
			s.SelectivityPassed, s.SelectivityTests, s.SelectivityRate*100)
	}
	if s.VerificationLevels[benchmark.VerificationPartial] > 0 {
		fmt.Fprintln(&b, dimStyle.Render(fmt.Sprintf("          %d tasks only partially verified",
			s.VerificationLevels[benchmark.VerificationPartial])))
	}
	b.WriteString(numbers.Sprintf("tokens    %d in / %d out per call, %s per use",
		int(s.AvgInputTokens), int(s.AvgOutputTokens), s.EstimatedCostPerUse))
	return cardStyle.Render(b.String())
}

// Tasks lists each task outcome with the criteria that failed.
func Tasks(results []*benchmark.TaskResult, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tRESULT\tCRITERIA\tVERIFIED\tTIME\tFAILED")
	for _, r := range results {
		status := "pass"
		if !r.Passed {
			status = "FAIL"
		}
		failed := strings.Join(r.FailedCriteria(), ",")
		if r.Error != "" {
			failed = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%.1fs\t%s\n",
			r.TaskID, status, r.VerifiedPassed, r.VerifiedTotal, r.VerificationLevel, r.ExecutionTime, failed)
	}
	return tw.Flush()
}

// Usage totals the recorded calls per model and prices them.
func Usage(records []completion.UsageRecord, table *pricing.Table, w io.Writer) error {
	byModel := map[string][]completion.UsageRecord{}
	for _, r := range records {
		byModel[r.Model] = append(byModel[r.Model], r)
	}
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCALLS\tINPUT\tOUTPUT\tCOST")
	var total float64
	for _, m := range models {
		in, out := completion.TotalUsage(byModel[m])
		cost := table.Cost(m, in, out)
		total += cost
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", m, len(byModel[m]),
			numbers.Sprintf("%d", in), numbers.Sprintf("%d", out), pricing.FormatUSD(cost))
	}
	in, out := completion.TotalUsage(records)
	fmt.Fprintf(tw, "total\t%d\t%s\t%s\t%s\n", len(records),
		numbers.Sprintf("%d", in), numbers.Sprintf("%d", out), pricing.FormatUSD(total))
	return tw.Flush()
}
