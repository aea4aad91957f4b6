package result

import "time"

// RunMeta describes how one skill evaluation was produced.
type RunMeta struct {
	Skill         string    `json:"skill"`
	Suite         string    `json:"suite"`
	SkillFile     string    `json:"skill_file,omitempty"`
	Model         string    `json:"model"`
	JudgeModel    string    `json:"judge_model"`
	Sandbox       string    `json:"sandbox"`
	TaskMetric    string    `json:"task_metric"`
	TaskWeight    float64   `json:"task_weight"`
	QualityWeight float64   `json:"quality_weight"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

const (
	metaFile       = "meta.json"
	SummaryFile    = "summary.json"
	taskResultsDir = "task_results"
	comparisonsDir = "quality_comparisons"
	selectivityDir = "selectivity_results"
	artifactsDir   = "artifacts"
	skillsDir      = "skills"
)
