package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/smsledger/internal/sms"
	"github.com/jask/smsledger/internal/source"
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringP("sender", "s", "", "Sender address of the message")
	classifyCmd.Flags().String("at", "", "Message time, RFC 3339 (default now)")
}

var classifyCmd = &cobra.Command{
	Use:   "classify [BODY...]",
	Short: "Classify messages without storing them",
	Long: `Classify one message given as arguments, or a JSONL stream on stdin
when no body is given. Prints one JSON result per message.`,
	RunE: runClassify,
}

type classifyLine struct {
	ID     string     `json:"id,omitempty"`
	Result sms.Result `json:"result"`
	Error  string     `json:"error,omitempty"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	classifier, _, err := newClassifier(configFrom(cmd))
	if err != nil {
		return err
	}

	var msgs []sms.RawMessage
	if len(args) > 0 {
		sender, _ := cmd.Flags().GetString("sender")
		at := time.Now()
		if v, _ := cmd.Flags().GetString("at"); v != "" {
			if at, err = time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("--at: %w", err)
			}
		}
		msgs = append(msgs, sms.RawMessage{Sender: sender, Body: strings.Join(args, " "), Timestamp: at})
	} else {
		if msgs, err = source.ReadJSONL(cmd.Context(), cmd.InOrStdin()); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, m := range msgs {
		line := classifyLine{ID: m.ID}
		if err := m.Validate(); err != nil {
			line.Error = err.Error()
		} else {
			line.Result = classifier.Classify(m)
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
