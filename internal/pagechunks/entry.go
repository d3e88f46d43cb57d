package pagechunks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/experius/pwa-buildpack/internal/jsparse"
)

// SyntheticEntry returns the source of the injected entry module: an object
// of page loaders, one dynamic import per page, each annotated with the page
// name as its chunk name. The generated text is parsed back and checked
// against pages before it is returned.
func SyntheticEntry(ctx context.Context, pages []Page) ([]byte, error) {
	var b strings.Builder
	b.WriteString("// Generated by pwa-buildpack. Each page below becomes its own chunk.\n")
	b.WriteString("export default {\n")
	for _, p := range pages {
		name, err := jsString(p.Name)
		if err != nil {
			return nil, err
		}
		spec, err := jsString(filepath.ToSlash(p.SourcePath))
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "    %s: () => import(/* webpackChunkName: %s */ %s),\n", name, name, spec)
	}
	b.WriteString("};\n")

	src := []byte(b.String())
	if err := verifyEntry(ctx, src, pages); err != nil {
		return nil, err
	}
	return src, nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func verifyEntry(ctx context.Context, src []byte, pages []Page) error {
	imports, err := jsparse.DynamicImports(ctx, src)
	if err != nil {
		return fmt.Errorf("generated entry does not parse: %w", err)
	}
	if len(imports) != len(pages) {
		return fmt.Errorf("generated entry has %d imports for %d pages", len(imports), len(pages))
	}
	for i, imp := range imports {
		p := pages[i]
		if imp.Specifier != filepath.ToSlash(p.SourcePath) || imp.ChunkName != p.Name {
			return fmt.Errorf("generated entry import %d is %q (%s), want %q (%s)",
				i, imp.Specifier, imp.ChunkName, p.SourcePath, p.Name)
		}
	}
	return nil
}
