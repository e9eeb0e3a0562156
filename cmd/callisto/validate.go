package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/policy/actions"
	"mercator-hq/callisto/pkg/policy/engine"
)

var validateFlags struct {
	rules    string
	sequence string
	format   string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the rule table",
	Long: `Load the rule map and rule sequence and check them against the action and
condition registries and the configured backends.

The validate command reports every problem it finds:
  - Unknown actions, conditions and qualities
  - Options that do not decode
  - Sequence entries naming missing rules
  - Destructive rules sharing a condition set
  - Rules depending on backends that are not configured

It exits with status 2 when the table is invalid.

Examples:
  # Validate the configured rule files
  callisto validate

  # Validate a candidate rule map
  callisto validate --rules rules.next.json --sequence sequence.next.json

  # List the compiled rules as JSON
  callisto validate --format json`,
	RunE: validateRules,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.rules, "rules", "", "local rule map file (overrides rules.rules_path)")
	validateCmd.Flags().StringVar(&validateFlags.sequence, "sequence", "", "rule sequence file (overrides rules.sequence_path)")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json, csv")
}

// ruleList is the validate output.
type ruleList []ruleInfo

type ruleInfo struct {
	Name       string   `json:"name"`
	Action     string   `json:"action"`
	Class      string   `json:"class"`
	Timeout    string   `json:"timeout"`
	ExitOnFail bool     `json:"exit_on_failure"`
	Conditions []string `json:"conditions"`
}

func (l ruleList) Header() []string {
	return []string{"RULE", "ACTION", "CLASS", "TIMEOUT", "EXIT ON FAILURE", "CONDITIONS"}
}

func (l ruleList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, r := range l {
		rows[i] = []string{r.Name, r.Action, r.Class, r.Timeout, fmt.Sprint(r.ExitOnFail), strings.Join(r.Conditions, " && ")}
	}
	return rows
}

func validateRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rules, sequence := a.rulePaths()
	if validateFlags.rules != "" {
		rules = validateFlags.rules
	}
	if validateFlags.sequence != "" {
		sequence = validateFlags.sequence
	}
	table, err := a.loader().Load(rules, sequence)
	if err != nil {
		return asConfigError(err)
	}
	compiled, err := engine.Compile(table, actions.Default(), engine.DefaultPredicates(), a.env)
	if err != nil {
		return asConfigError(err)
	}

	list := make(ruleList, 0, len(compiled.Rules))
	for _, r := range compiled.Rules {
		info := ruleInfo{
			Name:       r.Name,
			Action:     r.Action,
			Class:      r.Class.String(),
			Timeout:    r.Timeout.String(),
			ExitOnFail: r.ExitOnFailure,
		}
		for _, c := range r.Conditions {
			info.Conditions = append(info.Conditions, c.Signature())
		}
		list = append(list, info)
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), list); err != nil {
		return err
	}
	if format == cli.FormatText {
		fmt.Fprintf(cmd.OutOrStdout(), "\n✓ %d rules valid (digest %s)\n", len(list), compiled.Digest)
	}
	return nil
}
