package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/emconsole/internal/config"
	"github.com/kalambet/emconsole/internal/emergency"
	"github.com/kalambet/emconsole/internal/snapshot"
	"github.com/kalambet/emconsole/internal/storage"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show console and backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Console", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Console", "running on port %d", cfg.Server.Port)
			var records []json.RawMessage
			if r, err := client.get(ctx, "/emergencies"); err == nil && decodeJSON(r, &records) == nil {
				printStatus("Active", "%d", len(records))
			}
		} else {
			printStatus("Console", "error (HTTP %d)", resp.StatusCode)
		}
	}

	be, err := newBackendClient()
	if err != nil {
		return err
	}
	reachCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := be.ListEmergencies(reachCtx); err != nil {
		printStatus("Backend", "unreachable at %s (%v)", be.BaseURL(), err)
	} else {
		printStatus("Backend", "reachable at %s", be.BaseURL())
	}

	printStatus("Stream", "%s", cfg.Backend.StreamPath)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch and print the active emergencies once",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newBackendClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runList(ctx, cmd.OutOrStdout(), snapshot.NewFetcher(client, 0, nil, nil), asJSON)
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "print records as JSON")
}

func runList(ctx context.Context, w io.Writer, f *snapshot.Fetcher, asJSON bool) error {
	snap, err := f.FetchOnce(ctx)
	if err != nil {
		return err
	}
	records := snap.Records
	emergency.Sort(records)

	if asJSON {
		if records == nil {
			records = []emergency.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No active emergencies.")
		return nil
	}
	for i, rec := range records {
		fmt.Fprintln(w, formatRecord(rec, i == 0))
	}
	return nil
}

// --- submit / patch ---

var submitCmd = &cobra.Command{
	Use:   "submit <id>",
	Short: "Submit operator form data for an emergency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		return runMutation(cmd, args[0], data, true)
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch <id>",
	Short: "Apply a partial update to an emergency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		return runMutation(cmd, args[0], data, false)
	},
}

func init() {
	submitCmd.Flags().String("data", "", "JSON object to send")
	patchCmd.Flags().String("data", "", "JSON object to send")
}

func runMutation(cmd *cobra.Command, id, data string, submit bool) error {
	if data == "" {
		return fmt.Errorf("--data is required")
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("--data is not valid JSON")
	}

	client, err := newBackendClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var resp json.RawMessage
	if submit {
		resp, err = client.Submit(ctx, id, json.RawMessage(data))
	} else {
		resp, err = client.Patch(ctx, id, json.RawMessage(data))
	}
	if err != nil {
		return err
	}

	if len(resp) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), string(resp))
	}
	if submit {
		printSuccess("Submitted %s", id)
	} else {
		printSuccess("Patched %s", id)
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List emergencies that have left the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return runHistory(cmd.OutOrStdout(), store, limit)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the archived record of an emergency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return runHistoryShow(cmd.OutOrStdout(), store, args[0])
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	historyCmd.AddCommand(historyShowCmd)
}

var openStore = func() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.DataDir)
}

func runHistory(w io.Writer, store *storage.Store, limit int) error {
	past, err := store.ListPastEmergencies(limit, 0)
	if err != nil {
		return err
	}
	if len(past) == 0 {
		fmt.Fprintln(w, "No past emergencies.")
		return nil
	}
	for _, p := range past {
		status := p.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s  %s  %-10s %s\n",
			colorize(colorCyan, p.ID),
			p.RemovedAt.Local().Format(time.DateTime),
			status,
			p.Nature,
		)
	}
	return nil
}

func runHistoryShow(w io.Writer, store *storage.Store, id string) error {
	p, err := store.GetPastEmergency(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no archived emergency %q", id)
	}
	if err != nil {
		return err
	}

	var record any
	if err := json.Unmarshal([]byte(p.Payload), &record); err != nil {
		record = p.Payload
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":         p.ID,
		"status":     p.Status,
		"priority":   p.Priority,
		"caller":     p.Caller,
		"nature":     p.Nature,
		"removed_at": p.RemovedAt.Format(time.RFC3339),
		"record":     record,
	})
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
}
