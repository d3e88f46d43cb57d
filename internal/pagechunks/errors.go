package pagechunks

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error this package returns matches exactly one of
// them with errors.Is.
var (
	ErrConfiguration = errors.New("pagechunks: configuration error")
	ErrDiscovery     = errors.New("pagechunks: discovery error")
	ErrResolution    = errors.New("pagechunks: resolution error")
)

// ConfigurationError reports a bad plugin option or an incompatible host
// configuration. It is raised at construction or when the plugin is applied.
type ConfigurationError struct {
	Option   string // option name as the user wrote it, e.g. "entry" or "pagesDirs"
	Expected string // phrase completing `requires that "<option>" ...`
	Got      string // offending value, quoted
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s requires that %q %s", PluginName, e.Option, e.Expected)
	if e.Got != "" {
		msg += " (got " + e.Got + ")"
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// DiscoveryError reports missing page directories or an empty page set.
type DiscoveryError struct {
	Paths  []string
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", PluginName, e.Reason, strings.Join(e.Paths, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ResolutionError reports pages that have no usable output chunk after
// compilation. The manifest is not emitted when this happens.
type ResolutionError struct {
	Pages  []string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s for page(s) %s; refusing to emit an incomplete manifest",
		PluginName, e.Reason, strings.Join(e.Pages, ", "))
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }
