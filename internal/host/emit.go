package host

import (
	"context"
	"fmt"
	"path/filepath"
)

// Emit writes every remaining asset below Options.Output.Path and returns
// the written names. Callers run BeforeAssetEmit first.
func Emit(ctx context.Context, out OutputFS, c *Compilation) ([]string, error) {
	root := c.Options.Output.Path
	if err := out.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	names := c.AssetNames()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := filepath.Join(root, filepath.FromSlash(name))
		if dir := filepath.Dir(target); dir != root {
			if err := out.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		data, _ := c.Asset(name)
		if err := out.WriteFile(target, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return names, nil
}
