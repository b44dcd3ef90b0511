package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/prefs/internal/api"
	"github.com/kalambet/prefs/internal/prefs"
	"github.com/kalambet/prefs/internal/storage"
)

// --- get ---

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString("type")
			asJSON, _ := cmd.Flags().GetBool("json")

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}

			v, err := p.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if typ != "" {
				kind, err := prefs.ParseKind(typ)
				if err != nil {
					return err
				}
				if v.Kind() != kind {
					return &prefs.TypeMismatchError{Key: args[0], Want: kind, Got: v.Kind()}
				}
			}

			if asJSON {
				e, err := api.EntryOf(args[0], v)
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(e)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return nil
		},
	}
	cmd.Flags().String("type", "", "fail unless the stored value has this type")
	cmd.Flags().Bool("json", false, "print {key, type, value} as JSON")
	return cmd
}

// --- set ---

func newSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a preference, replacing any previous value",
		Long: `Store a preference, replacing any previous value regardless of its type.

Examples:
  prefs set theme dark
  prefs set volume 3 --type int
  prefs set onboarding.done true --type bool`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString("type")
			kind, err := prefs.ParseKind(typ)
			if err != nil {
				return err
			}
			v, err := prefs.ParseValue(kind, args[1])
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", kind, err)
			}

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.Save(cmd.Context(), args[0], v); err != nil {
				return err
			}

			printSuccess(cmd.ErrOrStderr(), "Set %s = %s (%s)", args[0], v, kind)
			return nil
		},
	}
	cmd.Flags().String("type", string(prefs.KindString), "value type: bool, int, long, float or string")
	return cmd
}

// --- rm ---

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Removed %s", args[0])
			return nil
		},
	}
}

// --- clear ---

func newClearCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every preference of the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				printWarning(cmd.ErrOrStderr(), "This will delete ALL preferences of %s. Use --confirm to proceed.", a.cfg.App.ID)
				return nil
			}

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.RemoveAll(cmd.Context()); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "All preferences of %s removed", a.cfg.App.ID)
			return nil
		},
	}
	cmd.Flags().Bool("confirm", false, "confirm removal")
	return cmd
}

// --- list ---

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			all, err := p.All(cmd.Context())
			if err != nil {
				return err
			}

			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No preferences stored.")
				return nil
			}
			for _, k := range sortedKeys(all) {
				v := all[k]
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					colorize(colorBold, k),
					colorize(colorCyan, string(v.Kind())),
					v.String(),
				)
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]prefs.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- export / import ---

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all preferences as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			all, err := p.All(cmd.Context())
			if err != nil {
				return err
			}

			var writer io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				writer = f
			}

			enc := json.NewEncoder(writer)
			for _, k := range sortedKeys(all) {
				e, err := api.EntryOf(k, all[k])
				if err != nil {
					return err
				}
				if err := enc.Encode(e); err != nil {
					return fmt.Errorf("writing %s: %w", k, err)
				}
			}

			if output != "" {
				printSuccess(cmd.ErrOrStderr(), "Exported %d preferences to %s", len(all), output)
			}
			return nil
		},
	}
	cmd.Flags().String("output", "", "output file path (default: stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import preferences from JSONL (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer f.Close()
				r = f
			}

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}

			printStep(cmd.ErrOrStderr(), "Importing into %s", p.Namespace())
			n := 0
			sc := bufio.NewScanner(r)
			sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
			for line := 1; sc.Scan(); line++ {
				raw := bytes.TrimSpace(sc.Bytes())
				if len(raw) == 0 {
					continue
				}
				var e api.Entry
				if err := json.Unmarshal(raw, &e); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				if e.Key == "" {
					return fmt.Errorf("line %d: missing key", line)
				}
				v, err := e.Decode()
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				if err := p.Save(cmd.Context(), e.Key, v); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				n++
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			printSuccess(cmd.ErrOrStderr(), "Imported %d preferences", n)
			return nil
		},
	}
}

// --- object ---

func newObjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Store or read JSON objects",
	}

	put := &cobra.Command{
		Use:   "put <key> <json|@file|->",
		Short: "Store a JSON document under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[1])
			if err != nil {
				return err
			}
			if !json.Valid(doc) {
				return errors.New("input is not a JSON document")
			}

			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.StoreObject(cmd.Context(), args[0], json.RawMessage(doc)); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Stored object %s", args[0])
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the JSON document stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.instance(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := prefs.GetObject[json.RawMessage](cmd.Context(), p, args[0])
			if err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, doc, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}

	cmd.AddCommand(put, get)
	return cmd
}

func readDocument(cmd *cobra.Command, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

// --- namespaces ---

func newNamespacesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "List application namespaces present in local storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.instance(cmd.Context()); err != nil {
				return err
			}
			b, err := a.holder.Backend()
			if err != nil {
				return err
			}
			store, ok := b.(*storage.Store)
			if !ok {
				return fmt.Errorf("namespaces are only listed for the sqlite backend (current: %s)", a.cfg.Storage.Backend)
			}

			names, err := store.Namespaces(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
