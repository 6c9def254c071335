package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bkmsyncctl",
	Short: "bkmsyncctl talks to a running bkmsyncd over its RPC surface",
}

func init() {
	rootCmd.PersistentFlags().String("addr", "http://127.0.0.1:8787", "bkmsyncd listen address")

	treeCmd := &cobra.Command{Use: "tree", Short: "inspect or mutate the bookmark tree"}
	treeCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "print the full tree",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "getTree", map[string]any{})
			},
		},
		&cobra.Command{
			Use:   "create-folder <parentId> <title>",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "createFolder", map[string]any{"parentId": args[0], "title": args[1]})
			},
		},
	)

	opCmd := &cobra.Command{Use: "op", Short: "inspect the operation log"}
	opCmd.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "print every recorded envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "getOperationLog", map[string]any{})
		},
	})

	syncCmd := &cobra.Command{Use: "sync", Short: "inspect or trigger sync"}
	syncCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "print the current sync status",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "getSyncStatus", map[string]any{})
			},
		},
		&cobra.Command{
			Use:   "force",
			Short: "trigger an immediate sync cycle",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "forceSyncOperation", map[string]any{})
			},
		},
	)

	nsCmd := &cobra.Command{Use: "ns", Short: "inspect or switch the active namespace"}
	nsCmd.AddCommand(&cobra.Command{
		Use:   "set <namespace>",
		Args:  cobra.ExactArgs(1),
		Short: "switch the daemon to a different namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "setNamespace", map[string]any{"namespace": args[0]})
		},
	})

	rootCmd.AddCommand(treeCmd, opCmd, syncCmd, nsCmd)
}

// call performs one RPC against the daemon and pretty-prints the result
// (or surfaces its error), mirroring how a thin CLI client should treat
// the daemon as the single source of truth rather than reimplementing
// any kernel logic locally.
func call(cmd *cobra.Command, method string, params map[string]any) error {
	addr, _ := cmd.Flags().GetString("addr")

	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	resp, err := http.Post(addr+"/rpc/"+method, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out struct {
		Result any    `json:"result,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != "" {
		return fmt.Errorf("%s: %s", method, out.Error)
	}

	pretty, err := json.MarshalIndent(out.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
