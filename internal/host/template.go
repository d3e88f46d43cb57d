package host

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultHashLength is the digest length used when a hash token has no ":N".
const DefaultHashLength = 20

var templateToken = regexp.MustCompile(`\[([a-z]+)(?::(\d+))?\]`)

// PathData is substituted into filename templates.
type PathData struct {
	Name string
	ID   string
	Hash string // hex content hash of the chunk
}

// ValidateTemplate rejects empty templates and unknown tokens.
func ValidateTemplate(tmpl string) error {
	if tmpl == "" {
		return fmt.Errorf("filename template is empty")
	}
	for _, m := range templateToken.FindAllStringSubmatch(tmpl, -1) {
		switch m[1] {
		case "name", "id":
			if m[2] != "" {
				return fmt.Errorf("filename template %q: [%s] does not take a length", tmpl, m[1])
			}
		case "hash", "chunkhash", "contenthash":
		default:
			return fmt.Errorf("filename template %q: unknown token [%s]", tmpl, m[1])
		}
	}
	return nil
}

// RenderTemplate substitutes data into tmpl. A missing name falls back to the id.
func RenderTemplate(tmpl string, data PathData) string {
	return templateToken.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := templateToken.FindStringSubmatch(tok)
		switch m[1] {
		case "name":
			if data.Name == "" {
				return data.ID
			}
			return data.Name
		case "id":
			return data.ID
		case "hash", "chunkhash", "contenthash":
			n := DefaultHashLength
			if m[2] != "" {
				if v, err := strconv.Atoi(m[2]); err == nil && v > 0 {
					n = v
				}
			}
			if n > len(data.Hash) {
				n = len(data.Hash)
			}
			return data.Hash[:n]
		}
		return tok
	})
}
