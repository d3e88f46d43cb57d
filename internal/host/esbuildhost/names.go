package esbuildhost

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/jsparse"
	"github.com/experius/pwa-buildpack/internal/logging"
)

// chunkNames reads the webpackChunkName annotations on the dynamic imports
// of every bundled module and maps each imported module's absolute path to
// the annotated name. Modules that cannot be read or parsed contribute no
// names.
func chunkNames(ctx context.Context, workDir string, entries *host.EntrySet, meta *metafile) map[string]string {
	names := make(map[string]string)

	keys := make([]string, 0, len(meta.Inputs))
	for k := range meta.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		in := meta.Inputs[key]
		var dynamic []metaImport
		for _, imp := range in.Imports {
			if imp.Kind == "dynamic-import" && !imp.External && imp.Original != "" {
				dynamic = append(dynamic, imp)
			}
		}
		if len(dynamic) == 0 {
			continue
		}

		path, src, ok := inputSource(workDir, entries, key)
		if !ok {
			continue
		}
		mod, err := jsparse.Parse(ctx, path, src)
		if err != nil {
			logging.BuildDebug("no chunk names from %s: %v", key, err)
			continue
		}
		bySpec := make(map[string]string, len(mod.DynamicImports))
		for _, imp := range mod.DynamicImports {
			if imp.ChunkName != "" {
				bySpec[imp.Specifier] = imp.ChunkName
			}
		}
		for _, imp := range dynamic {
			name, ok := bySpec[imp.Original]
			if !ok {
				continue
			}
			module := modulePath(workDir, imp.Path)
			if prev, seen := names[module]; seen && prev != name {
				logging.BuildWarn("%s is requested as chunk %q and %q; using %q", module, prev, name, prev)
				continue
			}
			names[module] = name
		}
	}
	return names
}

// inputSource returns the source esbuild loaded for a metafile input.
func inputSource(workDir string, entries *host.EntrySet, key string) (string, []byte, bool) {
	if strings.HasPrefix(key, virtualNamespace+":") {
		e, ok := entries.Get(strings.TrimPrefix(key, virtualNamespace+":"))
		if !ok || !e.Virtual() {
			return "", nil, false
		}
		return e.Name + ".js", e.Source, true
	}
	path := modulePath(workDir, key)
	src, err := os.ReadFile(path)
	if err != nil {
		logging.BuildDebug("no chunk names from %s: %v", key, err)
		return "", nil, false
	}
	return path, src, true
}
