package cmd

import (
	"fmt"
	"strings"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <suite>",
		Short: "List the tasks and quality prompts of a suite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := benchmark.LoadSuite(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Skill: %s\n", suite.SkillName)
			if len(suite.SkillClaims) > 0 {
				fmt.Println("\nClaims:")
				for _, c := range suite.SkillClaims {
					fmt.Printf("  - %s\n", c)
				}
			}
			fmt.Println("\nTasks:")
			for _, t := range suite.Tasks {
				fmt.Printf("  - %s\n", describeTask(t))
			}
			if len(suite.QualityPrompts) > 0 {
				fmt.Println("\nQuality prompts:")
				for _, q := range suite.QualityPrompts {
					fmt.Printf("  - %s\n", q)
				}
			}
			if len(suite.SelectivityTests) > 0 {
				fmt.Println("\nSelectivity prompts:")
				for _, st := range suite.SelectivityTests {
					fmt.Printf("  - %s: %s\n", st.ID, st.Prompt)
				}
			}
			return nil
		},
	}
}

func describeTask(t *benchmark.Task) string {
	kind := string(t.ExpectedOutputType)
	if t.ExpectedFileType != "" {
		kind += " " + t.ExpectedFileType
	}
	return fmt.Sprintf("%s [%s, %s] %s", t.ID, t.Difficulty, kind, strings.Join(t.SuccessCriteria.Names(), ", "))
}
