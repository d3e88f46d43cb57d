package esbuildhost

import (
	"encoding/json"
	"fmt"
)

// metafile is the part of esbuild's metafile the compiler reads.
type metafile struct {
	Inputs  map[string]metaInput  `json:"inputs"`
	Outputs map[string]metaOutput `json:"outputs"`
}

type metaInput struct {
	Imports []metaImport `json:"imports"`
}

type metaOutput struct {
	Imports    []metaImport `json:"imports"`
	EntryPoint string       `json:"entryPoint,omitempty"`
	CSSBundle  string       `json:"cssBundle,omitempty"`
	Bytes      int          `json:"bytes"`
}

type metaImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	Original string `json:"original,omitempty"` // specifier as written; inputs only
	External bool   `json:"external,omitempty"`
}

func parseMetafile(data string) (*metafile, error) {
	var m metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to parse esbuild metafile: %w", err)
	}
	return &m, nil
}
