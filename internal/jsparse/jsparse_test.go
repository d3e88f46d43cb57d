package jsparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DynamicImports(t *testing.T) {
	src := []byte(`
export default {
    "Page1": () => import(/* webpackChunkName: "Page1" */ "/project/pages/Page1.js"),
    "Page2": () => import('/project/pages/Page2.js'),
};
const lazy = () => import(` + "`./dynamic/${x}`" + `);
`)
	m, err := Parse(context.Background(), "entry.js", src)
	require.NoError(t, err)

	require.Len(t, m.DynamicImports, 2, "template-literal imports are not static specifiers")
	assert.Equal(t, Import{Specifier: "/project/pages/Page1.js", ChunkName: "Page1", Line: 3}, m.DynamicImports[0])
	assert.Equal(t, Import{Specifier: "/project/pages/Page2.js", Line: 4}, m.DynamicImports[1])
	assert.True(t, m.DefaultExport)
}

func TestParse_DefaultExportForms(t *testing.T) {
	cases := map[string]struct {
		path string
		src  string
		want bool
	}{
		"function":     {"Page.js", "export default function Page() { return null }", true},
		"class":        {"Page.jsx", "export default class Page extends Component { render() { return <div/> } }", true},
		"clause alias": {"Page.js", "const Page = 1;\nexport { Page as default };", true},
		"named only":   {"Page.js", "export const Page = 1;", false},
		"no exports":   {"Page.js", "console.log('side effect');", false},
		"typescript":   {"Page.ts", "const n: number = 1;\nexport default n;", true},
		"tsx":          {"Page.tsx", "export default function Page(): JSX.Element { return <div/> }", true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := Parse(context.Background(), tc.path, []byte(tc.src))
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.DefaultExport)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse(context.Background(), "broken.js", []byte("export default {\n  a: import(\"x\"\n"))
	require.Error(t, err)

	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, "broken.js", syn.Path)
	assert.GreaterOrEqual(t, syn.Line, 1)
}

func TestDynamicImports_None(t *testing.T) {
	imports, err := DynamicImports(context.Background(), []byte(`import x from "./static.js"; x();`))
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestDynamicImports_ChunkNamesWithQuotes(t *testing.T) {
	src := []byte(`
import(/* webpackChunkName: "Say\"Hi\"" */ "./a.js");
import(/* webpackChunkName: 'Don\'t' */ './b.js');
import(/* webpackChunkName: "Don't" */ "./c.js");
import(/* webpackChunkName: 'Say"Hi"' */ "./d.js");
`)
	imports, err := DynamicImports(context.Background(), src)
	require.NoError(t, err)

	var names []string
	for _, imp := range imports {
		names = append(names, imp.ChunkName)
	}
	assert.Equal(t, []string{`Say"Hi"`, "Don't", "Don't", `Say"Hi"`}, names)
}
