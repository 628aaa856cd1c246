package flow

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

var ErrFlowNotFound = errors.New("flow not found")

//go:embed flows/lead_intake.yaml
var defaultFlowRaw []byte

// Registry holds validated flow definitions. It is populated once during
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	hasValidator func(name string) bool
	flows        map[string]*Definition
}

// NewRegistry builds an empty registry. hasValidator gates input steps at
// load time; pass nil to skip validator existence checks.
func NewRegistry(hasValidator func(name string) bool) *Registry {
	return &Registry{
		hasValidator: hasValidator,
		flows:        make(map[string]*Definition, 4),
	}
}

func (r *Registry) Add(def *Definition) error {
	if err := def.validate(r.hasValidator); err != nil {
		return err
	}
	if _, dup := r.flows[def.ID]; dup {
		return fmt.Errorf("%w: duplicate flow id=%s", contractx.ErrFlowConfig, def.ID)
	}
	r.flows[def.ID] = def
	return nil
}

// LoadYAML parses and registers a single flow document.
func (r *Registry) LoadYAML(data []byte) error {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("%w: parse flow document: %v", contractx.ErrFlowConfig, err)
	}
	return r.Add(&def)
}

// LoadDir registers every *.yaml file in dir.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: read flow dir: %v", contractx.ErrFlowConfig, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("%w: read flow file %s: %v", contractx.ErrFlowConfig, entry.Name(), err)
		}
		if err := r.LoadYAML(data); err != nil {
			return fmt.Errorf("flow file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadDefault registers the embedded lead-intake flow.
func (r *Registry) LoadDefault() error {
	return r.LoadYAML(defaultFlowRaw)
}

// MustLoadDefault panics on malformed embedded flow data. Flow configuration
// errors are fatal at startup, never handled per conversation.
func (r *Registry) MustLoadDefault() {
	if err := r.LoadDefault(); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(flowID string) (*Definition, error) {
	def, ok := r.flows[strings.TrimSpace(flowID)]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrFlowNotFound, flowID)
	}
	return def, nil
}

func (r *Registry) Has(flowID string) bool {
	_, ok := r.flows[flowID]
	return ok
}
