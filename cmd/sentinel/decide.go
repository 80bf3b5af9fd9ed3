package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/config"
)

func newDecideCmd(load configLoader) *cobra.Command {
	var clipID string

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Apply the alert rules to a classifier result read from stdin",
		Example: `  echo '{"threat_level": 6, "description": "scuffle", "transcript": "help me"}' | sentinel decide
  THREAT_SCORE_THRESHOLD=5 sentinel decide < result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runDecide(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Decision, clipID)
		},
	}
	cmd.Flags().StringVar(&clipID, "clip-id", "manual", "clip id stamped on the verdict")
	return cmd
}

// runDecide validates the input exactly like classifier output, then
// prints the verdict as JSON.
func runDecide(in io.Reader, out io.Writer, cfg config.DecisionConfig, clipID string) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	res, err := analysis.ParseResult(data)
	if err != nil {
		return err
	}
	var extra struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &extra); err == nil {
		res.Transcript = extra.Transcript
	}

	v := engineFromConfig(cfg).Decide(clipID, res)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
