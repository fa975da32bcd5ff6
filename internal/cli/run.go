package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage document processing runs",
	}

	cmd.AddCommand(
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		scope         string
		pipelineKey   string
		appID         string
		tenantID      string
		patientID     string
		operationType string
		runID         string
		pageCount     int
		maxRetries    int
		retryFactor   float64
		subject       []string
	)

	cmd := &cobra.Command{
		Use:   "start DOCUMENT_ID",
		Short: "Start a new run for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := StartRunRequest{
				AppID:         appID,
				TenantID:      tenantID,
				PatientID:     patientID,
				DocumentID:    args[0],
				RunID:         runID,
				Scope:         scope,
				PipelineKey:   pipelineKey,
				OperationType: operationType,
				PageCount:     pageCount,
			}

			if cmd.Flags().Changed("max-retries") {
				req.MaxRetryCount = &maxRetries
			}
			if cmd.Flags().Changed("retry-factor") {
				req.RetryFactor = &retryFactor
			}

			if len(subject) > 0 {
				req.Subject = make(map[string]any)
				for _, kv := range subject {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid subject format %q, expected KEY=VALUE", kv)
					}
					req.Subject[parts[0]] = parts[1]
				}
			}

			started, err := client.StartRun(req)
			if err != nil {
				return err
			}

			out.RunStarted(started)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Pipeline scope (required)")
	cmd.Flags().StringVar(&pipelineKey, "pipeline", "", "Pipeline key (required)")
	cmd.Flags().StringVar(&appID, "app-id", "", "Application ID")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID")
	cmd.Flags().StringVar(&patientID, "patient-id", "", "Patient ID")
	cmd.Flags().StringVar(&operationType, "operation", "", "Operation type (controls callback delivery)")
	cmd.Flags().StringVar(&runID, "run-id", "", "External run ID (generated if not set)")
	cmd.Flags().IntVar(&pageCount, "pages", 0, "Declared page count of the document")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Maximum retry attempts per task")
	cmd.Flags().Float64Var(&retryFactor, "retry-factor", 0, "Retry backoff factor in seconds")
	cmd.Flags().StringSliceVar(&subject, "subject", nil, "Subject values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("scope")
	cmd.MarkFlagRequired("pipeline")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show aggregated run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.RunStatus(status)
			return nil
		},
	}
}

func newRunDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete all tracked state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteRun(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run deleted: %s", args[0]))
			return nil
		},
	}
}
