package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/chat"
)

// seed: load <container>.json files from a directory into the store.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed DIR",
		Short: "Load offerdata.json, accountdata.json and userdata.json from DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			n, err := seedDir(cmd.Context(), app.Chat, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d documents\n", n)
			return nil
		},
	}
}

// seedDir stores every document of the container files found in dir and
// returns how many were loaded. Missing files are skipped.
func seedDir(ctx context.Context, svc *chat.Service, dir string) (int, error) {
	total := 0
	for _, c := range []banking.Container{banking.ContainerUsers, banking.ContainerAccounts, banking.ContainerOffers} {
		path := filepath.Join(dir, string(c)+".json")
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, err
		}

		docs, err := splitDocuments(raw)
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		for i, doc := range docs {
			if err := svc.AddDocument(ctx, string(c), doc); err != nil {
				return total, fmt.Errorf("%s[%d]: %w", path, i, err)
			}
			total++
		}
	}
	return total, nil
}

// splitDocuments accepts a single JSON object or an array of objects.
func splitDocuments(raw []byte) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	return []json.RawMessage{raw}, nil
}
