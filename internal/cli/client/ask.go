package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// askRequest is the /chat request body.
type askRequest struct {
	Query string `json:"query"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a travel question",
		Long:  "Asks the wayfarer server a Vietnam travel question and streams the answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runAsk(api, cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	return cmd
}

// runAsk streams the answer to out as fragments arrive.
func runAsk(api *APIClient, out io.Writer, question string) error {
	body, err := api.PostStream("/chat", askRequest{Query: question})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	defer body.Close()

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("answer stream interrupted: %w", err)
		}
	}

	fmt.Fprintln(out)
	return nil
}
