package esbuildhost

import (
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/experius/pwa-buildpack/internal/host"
)

// virtualNamespace holds modules whose source lives in memory.
const virtualNamespace = "buildpack-virtual"

var virtualFilter = "^" + regexp.QuoteMeta(virtualNamespace) + ":"

func virtualPath(name string) string { return virtualNamespace + ":" + name }

// virtualModules serves the sources of virtual entry points.
func virtualModules(entries *host.EntrySet, resolveDir string) api.Plugin {
	return api.Plugin{
		Name: "virtual-modules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: virtualFilter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{
					Path:      strings.TrimPrefix(args.Path, virtualNamespace+":"),
					Namespace: virtualNamespace,
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: virtualNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				e, ok := entries.Get(args.Path)
				if !ok || !e.Virtual() {
					return api.OnLoadResult{}, nil
				}
				contents := string(e.Source)
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: resolveDir,
					Loader:     api.LoaderJS,
				}, nil
			})
		},
	}
}
