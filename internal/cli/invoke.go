package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// invokeOutput is the JSON printed by the invoke command.
type invokeOutput struct {
	TraceID      string `json:"trace_id"`
	StatusCode   int    `json:"status_code"`
	ResponseType string `json:"response_type"`
	Body         any    `json:"body"`
}

func newInvokeCommand(flags *globalFlags) *cobra.Command {
	var (
		credentialID string
		params       map[string]string
		headers      map[string]string
		body         string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <endpoint-id>",
		Short: "Call an endpoint once, synchronously, and print the parsed result",
		Long: `Invoke runs the full pipeline in-process without the task queue:
authentication, URL construction, the retrying call, the audit trace and
response parsing. The result is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.close()

			inv := driven.Invocation{
				EndpointID:   args[0],
				CredentialID: credentialID,
				Params:       params,
				Headers:      headers,
				Timeout:      timeout,
			}
			if body != "" {
				inv.Body = []byte(body)
			}

			result, err := newOrchestrator(cfg, s, nil).Execute(cmd.Context(), inv)
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&credentialID, "credential", "", "Credential ID for authenticated endpoints")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Query parameter key=value (repeatable)")
	cmd.Flags().StringToStringVar(&headers, "header", nil, "Request header key=value (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "Request body sent as application/json")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-attempt timeout (default RELAYGATE_REQUEST_TIMEOUT)")

	return cmd
}

func writeResult(w io.Writer, result *model.Result) error {
	out := invokeOutput{
		TraceID:      result.TraceID,
		StatusCode:   result.StatusCode,
		ResponseType: string(result.ResponseType),
		Body:         result.JSON,
	}
	if result.ResponseType != model.ResponseTypeJSON {
		out.Body = string(result.Raw)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
