package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// clientFlags are shared by the client subcommands.
type clientFlags struct {
	serverURL string
	token     string
	timeout   time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.serverURL, "server", "http://localhost:8000", "base URL of the vsc server")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (when auth is enabled)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 35*time.Second, "request timeout")
}

// taskEnvelope is the server's response envelope for task submissions.
type taskEnvelope struct {
	Result  string `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		ID    int64           `json:"id"`
		OK    bool            `json:"ok"`
		Value json.RawMessage `json:"value"`
		Err   string          `json:"err"`
	} `json:"data"`
}

func newInitSpawnCommand() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "init-spawn",
		Short: "Initialize the backend and start volume watchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := submitTask(flags, "initSpawn")
			if err != nil {
				return err
			}
			if !env.Data.OK {
				return fmt.Errorf("task %d failed: %s", env.Data.ID, env.Data.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized (task %d)\n", env.Data.ID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newListMountsCommand() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "list-mounts",
		Short: "List currently mounted volumes",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := submitTask(flags, "listMounts")
			if err != nil {
				return err
			}
			if !env.Data.OK {
				return fmt.Errorf("task %d failed: %s", env.Data.ID, env.Data.Err)
			}

			var listing []struct {
				Filesystem string  `json:"filesystem"`
				Device     string  `json:"device"`
				Path       *string `json:"path"`
			}
			if len(env.Data.Value) > 0 {
				if err := json.Unmarshal(env.Data.Value, &listing); err != nil {
					return fmt.Errorf("unexpected listing payload: %w", err)
				}
			}

			for _, m := range listing {
				path := "(not mounted)"
				if m.Path != nil {
					path = *m.Path
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Device, m.Filesystem, path)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// submitTask posts one task to the server and decodes the envelope.
func submitTask(flags *clientFlags, op string) (*taskEnvelope, error) {
	body, err := json.Marshal(map[string]string{"op": op})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, flags.serverURL+"/api/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if flags.token != "" {
		req.Header.Set("Authorization", "Bearer "+flags.token)
	}

	client := &http.Client{Timeout: flags.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Result != "ok" {
		return nil, fmt.Errorf("server error %s: %s", env.Code, env.Message)
	}
	return &env, nil
}
