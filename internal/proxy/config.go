package proxy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

// toolManifest is the parsed shape of an optional tools.yaml overlay: a
// list of proxy-only tools the proxy serves itself, independent of whether
// a host is connected. It is read once at startup; the file is optional,
// so its absence is not an error.
type toolManifest struct {
	Tools []manifestTool `yaml:"tools"`
}

type manifestTool struct {
	Name             string         `yaml:"name"`
	ShortDescription string         `yaml:"short_description"`
	Description      string         `yaml:"description"`
	InputSchema      map[string]any `yaml:"input_schema"`
	// StaticResponse is returned verbatim as a String response; tools.yaml
	// entries are static/canned (e.g. a fixed log excerpt), not arbitrary
	// code. Real logic lives in internal/debugtools and the host's own
	// registry, not in the config file.
	StaticResponse string `yaml:"static_response"`
}

// LoadToolManifest reads and parses path into a Registry of proxy-only
// tools. A missing file is not an error and yields an empty registry.
func LoadToolManifest(path string) (*registry.Registry, error) {
	reg := registry.New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("proxy: read tool manifest %s: %w", path, err)
	}

	var manifest toolManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("proxy: parse tool manifest %s: %w", path, err)
	}

	for _, t := range manifest.Tools {
		text := t.StaticResponse
		if err := reg.Add(registry.Entry{
			Name:             t.Name,
			ShortDescription: t.ShortDescription,
			FullDescription:  t.Description,
			InputSchema:      t.InputSchema,
			Handler: registry.HandlerFunc(func(registry.Args) (response.Response, error) {
				return response.String(text), nil
			}),
		}); err != nil {
			return nil, fmt.Errorf("proxy: tool manifest %s: %w", path, err)
		}
	}
	return reg, nil
}
