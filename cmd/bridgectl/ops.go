package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/internal/server"
)

func newOpsCommand(root *rootOptions) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List engine operations",
		Long: `List the operations an engine may implement. With --remote, list the
engines installed on the server and the operations each declares.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !remote {
				for _, op := range engine.Operations() {
					fmt.Fprintf(out, "%s\t%s\n", op, op.Export())
				}
				return nil
			}

			engines, err := fetchEngines(cmd, root.target.url)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tOPERATIONS")
			for _, e := range engines {
				ops := "all"
				if len(e.Operations) > 0 {
					ops = strings.Join(e.Operations, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Version, ops)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Query the server's installed engines")
	return cmd
}

// enginesURL derives the engine listing URL from the worker endpoint.
func enginesURL(workerURL string) (string, error) {
	u, err := url.Parse(workerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/worker") + "/engines"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchEngines(cmd *cobra.Command, workerURL string) ([]server.EngineInfo, error) {
	target, err := enginesURL(workerURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	var engines []server.EngineInfo
	if err := json.NewDecoder(resp.Body).Decode(&engines); err != nil {
		return nil, fmt.Errorf("decode engine list: %w", err)
	}
	return engines, nil
}
