package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func getCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "get <gist-id>",
		Short: "Print the canonical markdown of a gist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gistID := args[0]
			u := strings.TrimRight(serverURL, "/") + "/api/gists/" + url.PathEscape(gistID)

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server answered %s", resp.Status)
			}

			var body struct {
				Content *string `json:"content"`
			}
			if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&body); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if body.Content == nil {
				return fmt.Errorf("gist %s has no persisted content", gistID)
			}

			fmt.Fprint(cmd.OutOrStdout(), *body.Content)
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "gistsync server URL")
	return cmd
}
