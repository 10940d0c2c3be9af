package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
)

var debugCmd = &cobra.Command{
	Use:   "debug <rules-file>",
	Short: "Run a rule debugging session and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("values")
		values, err := parseValues(raw)
		if err != nil {
			return err
		}
		bps, _ := cmd.Flags().GetStringSlice("breakpoint")
		maxSteps, _ := cmd.Flags().GetInt("max-steps")
		pause, _ := cmd.Flags().GetBool("pause")
		trigger, _ := cmd.Flags().GetString("trigger")
		fieldID, _ := cmd.Flags().GetString("trigger-field")

		breakpoints := make(map[string]bool, len(bps))
		for _, id := range bps {
			breakpoints[id] = true
		}
		session := rules.NewEngine().RunSession(rs, values, rules.SessionOptions{
			MaxSteps:          maxSteps,
			Breakpoints:       breakpoints,
			PauseOnBreakpoint: pause,
			Trigger:           types.Trigger(trigger),
			TriggerFieldID:    fieldID,
		})
		return printJSON(cmd.OutOrStdout(), session)
	},
}

var edgeCasesCmd = &cobra.Command{
	Use:   "edge-cases <rules-file>",
	Short: "Generate probe value sets for a rule list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rules.GenerateEdgeCases(rs))
	},
}

var lintRulesCmd = &cobra.Command{
	Use:   "lint-rules <rules-file>",
	Short: "Check a rule list for authoring mistakes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(args[0])
		if err != nil {
			return err
		}
		issues := rules.ValidateRules(rs)
		if err := printJSON(cmd.OutOrStdout(), issues); err != nil {
			return err
		}
		severities := make([]types.Severity, 0, len(issues))
		for _, is := range issues {
			severities = append(severities, is.Severity)
		}
		if types.HasErrors(severities...) {
			return fmt.Errorf("%s has rule errors", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd, edgeCasesCmd, lintRulesCmd)
	debugCmd.Flags().String("values", "{}", "form values as a JSON object")
	debugCmd.Flags().StringSlice("breakpoint", nil, "rule id to break on (repeatable)")
	debugCmd.Flags().Int("max-steps", 0, "evaluate at most this many rules (0 = all)")
	debugCmd.Flags().Bool("pause", false, "stop the session at the first breakpoint")
	debugCmd.Flags().String("trigger", "", "only evaluate rules listening for this trigger")
	debugCmd.Flags().String("trigger-field", "", "field id for onChange/onBlur trigger filtering")
}

// loadRules reads either a rule set object or a bare rule array.
func loadRules(path string) ([]types.Rule, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var list []types.Rule
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return list, nil
	}
	var rs types.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rs.Rules, nil
}
