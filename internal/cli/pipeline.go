package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления определениями pipeline.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipeline definitions",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelinePublishCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List latest pipeline definitions in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListDefinitions(scope)
			if err != nil {
				return err
			}

			out.Definitions(defs)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Pipeline scope (required)")
	cmd.MarkFlagRequired("scope")

	return cmd
}

func newPipelinePublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tasksFile string

	cmd := &cobra.Command{
		Use:   "publish SCOPE KEY",
		Short: "Publish a new definition version from tasks file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(tasksFile)
			if err != nil {
				return fmt.Errorf("failed to read tasks file: %w", err)
			}

			var tasks []TaskStepResponse
			if err := json.Unmarshal(data, &tasks); err != nil {
				return fmt.Errorf("tasks file is not a valid JSON task list: %w", err)
			}

			def, err := client.PublishDefinition(PublishDefinitionRequest{
				Scope: args[0],
				Key:   args[1],
				Tasks: tasks,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Version %d published for %s/%s", def.Version, def.Scope, def.Key))
			out.Definitions([]DefinitionResponse{*def})
			return nil
		},
	}

	cmd.Flags().StringVar(&tasksFile, "tasks-file", "", "Path to JSON file with the task list (required)")
	cmd.MarkFlagRequired("tasks-file")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SCOPE KEY",
		Short: "Show the latest definition version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetDefinition(args[0], args[1])
			if err != nil {
				return err
			}

			out.Definition(def)
			return nil
		},
	}
}

func newPipelineDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SCOPE KEY",
		Short: "Delete all versions of a definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteDefinition(args[0], args[1]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline definition deleted: %s/%s", args[0], args[1]))
			return nil
		},
	}
}
