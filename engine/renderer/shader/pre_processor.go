package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/packer"
	"github.com/cockroachdb/errors"
)

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process returns source with every annotation replaced by its WGSL expansion.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: a malformed annotation or an unknown struct, contract or slot
	Process(source string) (string, error)

	// Declarations returns the binding annotations seen by the last Process call, in source order.
	Declarations() []Annotation
}

type preProcessor struct {
	structs      map[string]string
	contracts    map[string]bindings.Contract
	declarations []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a pre-processor that knows the packer's GPU structs and every
// bindings contract.
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structs: map[string]string{
			"scene_uniform": packer.GPUSceneUniformSource,
			"primitive":     packer.GPUPrimitiveSource,
			"instance":      packer.GPUInstanceSource,
			"material":      packer.GPUMaterialSource,
			"cluster":       packer.GPUClusterSource,
			"draw_command":  packer.GPUDrawCommandSource,
		},
		contracts: map[string]bindings.Contract{
			bindings.Render.Name:  bindings.Render,
			bindings.Cull.Name:    bindings.Cull,
			bindings.Cluster.Name: bindings.Cluster,
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			src, ok := p.structs[a.Args[0]]
			if !ok {
				return "", errors.Newf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			out = append(out, src)
		case AnnotationTypeBinding:
			decl, err := p.declare(a)
			if err != nil {
				return "", err
			}
			out = append(out, decl)
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) declare(a *Annotation) (string, error) {
	c, ok := p.contracts[a.Args[0]]
	if !ok {
		return "", errors.Newf("line %d: unknown contract %q", a.Line, a.Args[0])
	}
	slot, ok := c.Lookup(a.Args[1])
	if !ok {
		return "", errors.Newf("line %d: contract %s has no slot %q", a.Line, c.Name, a.Args[1])
	}

	var space string
	switch slot.Kind {
	case bindings.KindUniform:
		space = "<uniform>"
	case bindings.KindStorage:
		space = "<storage, read_write>"
	case bindings.KindReadOnlyStorage:
		space = "<storage, read>"
	}
	return fmt.Sprintf("@group(%d) @binding(%d) var%s %s: %s;", c.Group, slot.Binding, space, slot.Name, a.Args[2]), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
