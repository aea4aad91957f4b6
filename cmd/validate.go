package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/skill"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <suite>...",
		Short: "Check suite files against the suite schema",
		Long:  "Load each suite, report every schema problem, and check that the SKILL.md beside it parses.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bad int
			for _, path := range args {
				if err := validateSuite(path); err != nil {
					bad++
					fmt.Printf("FAIL %s\n", path)
					var se *benchmark.SchemaError
					if errors.As(err, &se) {
						for _, p := range se.Problems {
							fmt.Printf("  - %s\n", p)
						}
					} else {
						fmt.Printf("  - %v\n", err)
					}
					continue
				}
				fmt.Printf("ok   %s\n", path)
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d suites invalid", bad, len(args))
			}
			return nil
		},
	}
}

func validateSuite(path string) error {
	suite, err := benchmark.LoadSuite(path)
	if err != nil {
		return err
	}
	if len(suite.Tasks) == 0 {
		return errors.New("suite has no tasks")
	}
	skillPath := resolveSkillPath(path, "")
	if _, err := os.Stat(skillPath); err == nil {
		if _, err := skill.Load(skillPath); err != nil {
			return err
		}
	}
	return nil
}
