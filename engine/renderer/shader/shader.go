package shader

import (
	_ "embed"
	stderrors "errors"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderSource draws the plant, ground and sky drawables from the instanced vertex stream.
//
//go:embed assets/render.wgsl
var RenderSource string

// ClusterSource draws clusters, pulling geometry and instance data from storage buffers.
//
//go:embed assets/cluster.wgsl
var ClusterSource string

// Shader is a pre-processed and reflected WGSL module.
type Shader interface {
	// Key is the label used for the module and its pipelines.
	Key() string

	// Source is the expanded WGSL text.
	Source() string

	// Reflection describes the module's bindings, entry points and vertex inputs.
	Reflection() *Reflection

	// Module returns the descriptor used to create the GPU shader module.
	Module() *wgpu.ShaderModuleDescriptor

	// Verify checks the module's bindings against a contract.
	//
	// Parameters:
	//   - c: the contract the host code binds by
	//
	// Returns:
	//   - error: every missing, extra or mis-typed slot, joined
	Verify(c bindings.Contract) error
}

type shader struct {
	key        string
	source     string
	reflection *Reflection
	module     *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader pre-processes and reflects WGSL source.
//
// Parameters:
//   - key: module label
//   - source: WGSL source, possibly containing @oxy: annotations
//
// Returns:
//   - Shader: the shader
//   - error: an annotation or reflection error
func NewShader(key, source string) (Shader, error) {
	expanded, err := NewPreProcessor().Process(source)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", key)
	}
	r, err := Reflect(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", key)
	}
	return &shader{
		key:        key,
		source:     expanded,
		reflection: r,
		module: &wgpu.ShaderModuleDescriptor{
			Label:          key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: expanded},
		},
	}, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Reflection() *Reflection {
	return s.reflection
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Verify(c bindings.Contract) error {
	declared := map[uint32]Binding{}
	for _, b := range s.reflection.Group(c.Group) {
		declared[b.Binding] = b
	}

	var errs []error
	for _, slot := range c.Slots {
		b, ok := declared[slot.Binding]
		if !ok {
			errs = append(errs, errors.Newf("%s: %s binding %d (%s) not declared", s.key, c.Name, slot.Binding, slot.Name))
			continue
		}
		delete(declared, slot.Binding)
		if b.Name != slot.Name {
			errs = append(errs, errors.Newf("%s: binding %d is %q, want %q", s.key, slot.Binding, b.Name, slot.Name))
		}
		if b.Kind != slot.Kind {
			errs = append(errs, errors.Newf("%s: %s is %s, want %s", s.key, slot.Name, b.Kind, slot.Kind))
		}
	}
	for _, b := range declared {
		errs = append(errs, errors.Newf("%s: binding %d (%s) is not in contract %s", s.key, b.Binding, b.Name, c.Name))
	}
	return stderrors.Join(errs...)
}
