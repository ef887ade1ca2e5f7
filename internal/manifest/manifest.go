// Package manifest loads function manifests from YAML or CUE files.
package manifest

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pgproxy/internal/ir"
)

// Manifest is a batch of functions plus the sync options that apply to it.
// Optional booleans are nil when the file does not set them.
type Manifest struct {
	Schema        string              `yaml:"schema,omitempty" json:"schema,omitempty"`
	CreateNew     *bool               `yaml:"create_new,omitempty" json:"create_new,omitempty"`
	UpdateChanged *bool               `yaml:"update_changed,omitempty" json:"update_changed,omitempty"`
	PurgeOrphaned *bool               `yaml:"purge_orphaned,omitempty" json:"purge_orphaned,omitempty"`
	Expose        []string            `yaml:"expose,omitempty" json:"expose,omitempty"`
	Functions     map[string]Function `yaml:"functions" json:"functions"`
}

// Function is one manifest entry, keyed by name in Manifest.Functions.
type Function struct {
	Params []string `yaml:"params,omitempty" json:"params,omitempty"`
	Body   string   `yaml:"body" json:"body"`
}

// Error codes for manifest loading.
const (
	ErrCodeNotFound    = "E001" // Manifest file missing or unreadable
	ErrCodeUnsupported = "E002" // Unknown file extension
	ErrCodeParseFailed = "E003" // YAML or CUE syntax/decode error
	ErrCodeInvalid     = "E004" // Decoded manifest fails validation
)

// LoadError describes a manifest that could not be loaded.
type LoadError struct {
	Path    string
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// Load reads a manifest, choosing the decoder by extension: .yaml and .yml
// are YAML, .cue is CUE.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeNotFound, Message: err.Error()}
	}

	var m *Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		m, err = parseYAML(path, data)
	case ".cue":
		m, err = parseCUE(path, data)
	default:
		return nil, &LoadError{Path: path, Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeInvalid, Message: err.Error()}
	}
	return m, nil
}

func parseYAML(path string, data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&m); err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeParseFailed, Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	return &m, nil
}

func parseCUE(path string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(path, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(path, err)
	}

	var m Manifest
	if err := v.Decode(&m); err != nil {
		return nil, cueLoadError(path, err)
	}
	return &m, nil
}

// cueLoadError keeps the first CUE error and its position.
func cueLoadError(path string, err error) *LoadError {
	le := &LoadError{Path: path, Code: ErrCodeParseFailed, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		if positions := cueerrors.Positions(errs[0]); len(positions) > 0 {
			le.Pos = positions[0]
		}
	}
	return le
}

// Validate checks the manifest shape. Identifier rules for names and params
// are enforced when the batch is compiled.
func (m *Manifest) Validate() error {
	if len(m.Functions) == 0 {
		return fmt.Errorf("functions is required and must be non-empty")
	}
	for _, name := range slices.Sorted(maps.Keys(m.Functions)) {
		if strings.TrimSpace(m.Functions[name].Body) == "" {
			return fmt.Errorf("function %q: body is required", name)
		}
	}
	seen := make(map[string]bool, len(m.Expose))
	for _, name := range m.Expose {
		if seen[name] {
			return fmt.Errorf("expose: %q listed more than once", name)
		}
		seen[name] = true
	}
	return nil
}

// FunctionSpecs returns the functions sorted by name.
func (m *Manifest) FunctionSpecs() []ir.FunctionSpec {
	specs := make([]ir.FunctionSpec, 0, len(m.Functions))
	for _, name := range slices.Sorted(maps.Keys(m.Functions)) {
		fn := m.Functions[name]
		specs = append(specs, ir.FunctionSpec{
			Name:   name,
			Params: slices.Clone(fn.Params),
			Body:   fn.Body,
		})
	}
	return specs
}

// Function returns the FunctionSpec for one function by name.
func (m *Manifest) Function(name string) (ir.FunctionSpec, bool) {
	fn, ok := m.Functions[name]
	if !ok {
		return ir.FunctionSpec{}, false
	}
	return ir.FunctionSpec{Name: name, Params: slices.Clone(fn.Params), Body: fn.Body}, true
}
