package prompt

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/canned.yaml
	cannedRaw []byte
)

// Canned holds the fixed texts the engine emits without consulting the
// generator: terminal messages, the degradation apology, and the
// unknown-conversation reply.
type Canned struct {
	Handoff  string `yaml:"handoff"`
	Closing  string `yaml:"closing"`
	Apology  string `yaml:"apology"`
	NotFound string `yaml:"not_found"`
}

type Set struct {
	System string
	canned map[string]Canned
}

// LoadSet parses the embedded templates. The embed is compile-time, so a
// parse failure is a build defect; it panics like a config error.
func LoadSet() Set {
	var canned map[string]Canned
	if err := yaml.Unmarshal(cannedRaw, &canned); err != nil {
		panic("prompt: parse embedded canned texts: " + err.Error())
	}
	return Set{
		System: strings.TrimSpace(systemRaw),
		canned: canned,
	}
}

// For returns the canned texts for lang, falling back to English.
func (s Set) For(lang string) Canned {
	if c, ok := s.canned[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return c
	}
	return s.canned["en"]
}
