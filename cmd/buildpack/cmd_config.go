package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/experius/pwa-buildpack/internal/globalconfig"
	"github.com/experius/pwa-buildpack/internal/tempfile"
)

// configCmd groups the global config store commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write the per-user global config store",
	Long: `Values live in a SQLite file shared by every project on this machine
(global_config.path in buildpack.yaml, default ~/.config/pwa-buildpack.db).
Each value belongs to a prefix and is addressed by zero or more key parts;
the number of parts must match how the value was stored.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <prefix> [key...]",
	Short: "Print a stored value as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <prefix> [key...] <value>",
	Short: "Store a value; input that is not JSON is stored as a string",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConfigSet,
}

var configDelCmd = &cobra.Command{
	Use:   "del <prefix> [key...]",
	Short: "Remove a stored value",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConfigDel,
}

var configListCmd = &cobra.Command{
	Use:   "list <prefix>",
	Short: "Print every value stored under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigList,
}

var configClearCmd = &cobra.Command{
	Use:   "clear <prefix>",
	Short: "Remove every value stored under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigClear,
}

var configEditCmd = &cobra.Command{
	Use:   "edit <prefix> [key...]",
	Short: "Edit a stored value in $VISUAL or $EDITOR",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConfigEdit,
}

// openStore opens the configured database and a store whose arity matches
// the number of key parts given.
func openStore(prefix string, keys []string) (*globalconfig.Store, func(), error) {
	db, err := cfg.OpenGlobalConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := globalconfig.New(db, globalconfig.Options{
		Prefix: prefix,
		Arity:  len(keys),
		Key:    globalconfig.JoinKey,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, func() { db.Close() }, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	s, done, err := openStore(args[0], args[1:])
	if err != nil {
		return err
	}
	defer done()

	raw, ok, err := getRaw(cmd.Context(), s, args[1:])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no value stored for %s", describeKey(args))
	}
	fmt.Fprintln(cmd.OutOrStdout(), raw)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	keys, input := args[1:len(args)-1], args[len(args)-1]
	s, done, err := openStore(args[0], keys)
	if err != nil {
		return err
	}
	defer done()

	if err := s.Set(cmd.Context(), parseValue(input), keys...); err != nil {
		return err
	}
	logger.Debug("stored value " + describeKey(args[:len(args)-1]))
	return nil
}

func runConfigDel(cmd *cobra.Command, args []string) error {
	s, done, err := openStore(args[0], args[1:])
	if err != nil {
		return err
	}
	defer done()
	return s.Del(cmd.Context(), args[1:]...)
}

func runConfigList(cmd *cobra.Command, args []string) error {
	// Arity is irrelevant for listing.
	s, done, err := openStore(args[0], nil)
	if err != nil {
		return err
	}
	defer done()

	values, err := s.Values(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(values) == 0 {
		fmt.Fprintln(out, labelStyle.Render("no values under "+args[0]))
		return nil
	}
	for _, v := range values {
		fmt.Fprintln(out, string(v))
	}
	return nil
}

func runConfigClear(cmd *cobra.Command, args []string) error {
	s, done, err := openStore(args[0], nil)
	if err != nil {
		return err
	}
	defer done()
	return s.Clear(cmd.Context())
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, done, err := openStore(args[0], args[1:])
	if err != nil {
		return err
	}
	defer done()

	current, _, err := getRaw(ctx, s, args[1:])
	if err != nil {
		return err
	}

	return tempfile.With(current, ".json", func(f *tempfile.File) error {
		if err := runEditor(ctx, cmd, f.Path()); err != nil {
			return err
		}
		edited, err := f.Read()
		if err != nil {
			return err
		}
		if strings.TrimSpace(edited) == "" {
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("empty file, nothing stored"))
			return nil
		}
		if !json.Valid([]byte(edited)) {
			return fmt.Errorf("edited value for %s is not valid JSON", describeKey(args))
		}
		return s.Set(ctx, json.RawMessage(edited), args[1:]...)
	})
}

// getRaw returns the stored value indented for display.
func getRaw(ctx context.Context, s *globalconfig.Store, keys []string) (string, bool, error) {
	var raw json.RawMessage
	ok, err := s.Get(ctx, &raw, keys...)
	if err != nil || !ok {
		return "", ok, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw), true, nil
	}
	return buf.String(), true, nil
}

func parseValue(input string) interface{} {
	if json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	return input
}

func runEditor(ctx context.Context, cmd *cobra.Command, path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	argv := append(strings.Fields(editor), path)
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %q failed: %w", editor, err)
	}
	return nil
}

func describeKey(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return args[0] + " [" + strings.Join(args[1:], " ") + "]"
}
