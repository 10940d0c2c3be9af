package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/solatis/formflow/internal/core/caller"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Validate a workflow document (JSON or YAML)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := loadWorkflow(args[0])
		if err != nil {
			return err
		}
		result := workflow.Validate(wf)
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("workflow %s has errors", wf.ID)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute a workflow document locally and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

var templatesCmd = &cobra.Command{
	Use:   "templates [id]",
	Short: "List workflow templates, or print one template's workflow",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			wf, err := workflow.Instantiate(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), wf)
		}
		templates, err := workflow.Templates()
		if err != nil {
			return err
		}
		for _, t := range templates {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", t.ID, t.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, runCmd, templatesCmd)
	runCmd.Flags().String("values", "{}", "form values as a JSON object")
}

func loadWorkflow(path string) (*types.Workflow, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	wf, err := workflow.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

func parseValues(raw string) (types.Values, error) {
	values := types.Values{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("invalid --values: %w", err)
	}
	return values, nil
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	l, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	wf, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}
	raw, _ := cmd.Flags().GetString("values")
	values, err := parseValues(raw)
	if err != nil {
		return err
	}

	httpCaller, err := caller.New(cfg.Caller, l)
	if err != nil {
		return fmt.Errorf("failed to create API caller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Engine.RequestTimeout)
	defer cancel()

	result := workflow.NewExecutor(httpCaller, workflow.WithLogger(l)).Execute(ctx, wf, values)
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if result.Status() != "success" {
		return fmt.Errorf("workflow %s finished with status %s", wf.ID, result.Status())
	}
	return nil
}
