package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/cockroachdb/errors"
)

// Stage is a shader pipeline stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return "compute"
	}
}

var (
	// structBlockRegex captures a struct name and body.
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)
	builtinRegex  = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex captures the name and type of a struct member after any attributes.
	fieldRegex = regexp.MustCompile(`^(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)$`)

	// entryRegex captures the stage attribute and function name of an entry point.
	entryRegex = regexp.MustCompile(`@(vertex|fragment|compute)\b[^{]*?\bfn\s+(\w+)`)

	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\w+)\s*(?:,\s*(\w+)\s*(?:,\s*(\w+)\s*)?)?\)`)

	constRegex = regexp.MustCompile(`const\s+(\w+)\s*(?::\s*\w+)?\s*=\s*(\d+)u?\s*;`)

	// bindingDeclRegex captures group, binding, optional address space, name and type.
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

type parsedStruct struct {
	name   string
	fields []parsedField
}

// Binding is one resource declaration found in WGSL source.
type Binding struct {
	Group   uint32
	Binding uint32
	Name    string
	Type    string
	Kind    bindings.Kind
	MinSize uint64 // buffer bindings only; one element for runtime-sized arrays
}

// VertexAttribute is one @location member of a vertex input struct.
type VertexAttribute struct {
	Location uint32
	Type     string
	Offset   uint64
}

// VertexInput is a struct made only of @location members.
type VertexInput struct {
	Name       string
	Attributes []VertexAttribute
	Stride     uint64
}

// Reflection is what the engine needs to know about a WGSL module.
type Reflection struct {
	Bindings      []Binding
	Entries       map[Stage][]string
	WorkgroupSize [3]uint32
	Structs       map[string]TypeLayout
	VertexInputs  []VertexInput
}

// Reflect parses WGSL source.
//
// Parameters:
//   - source: pre-processed WGSL
//
// Returns:
//   - *Reflection: bindings sorted by group then binding, entry points, layouts
//   - error: two declarations share a group and binding
func Reflect(source string) (*Reflection, error) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)

	r := &Reflection{
		Entries:       map[Stage][]string{},
		WorkgroupSize: parseWorkgroupSize(cleaned),
		Structs:       structLayouts(structs),
	}
	for _, m := range entryRegex.FindAllStringSubmatch(cleaned, -1) {
		stage := map[string]Stage{"vertex": StageVertex, "fragment": StageFragment, "compute": StageCompute}[m[1]]
		r.Entries[stage] = append(r.Entries[stage], m[2])
	}
	for _, ps := range structs {
		if vi, ok := vertexInput(ps); ok {
			r.VertexInputs = append(r.VertexInputs, vi)
		}
	}

	seen := map[[2]uint32]string{}
	for _, m := range bindingDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		g, _ := strconv.ParseUint(m[1], 10, 32)
		b, _ := strconv.ParseUint(m[2], 10, 32)
		key := [2]uint32{uint32(g), uint32(b)}
		if prev, dup := seen[key]; dup {
			return nil, errors.Newf("shader: @group(%d) @binding(%d) declared by %s and %s", g, b, prev, m[4])
		}
		seen[key] = m[4]

		bd := Binding{
			Group:   uint32(g),
			Binding: uint32(b),
			Name:    m[4],
			Type:    strings.TrimSpace(m[5]),
			Kind:    classify(strings.TrimSpace(m[3]), strings.TrimSpace(m[5])),
		}
		if bd.Kind <= bindings.KindReadOnlyStorage {
			if l, ok := resolveLayout(bd.Type, r.Structs); ok {
				bd.MinSize = l.Size
			}
		}
		r.Bindings = append(r.Bindings, bd)
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Group != r.Bindings[j].Group {
			return r.Bindings[i].Group < r.Bindings[j].Group
		}
		return r.Bindings[i].Binding < r.Bindings[j].Binding
	})
	return r, nil
}

// Entry returns the first entry point of a stage, or "".
func (r *Reflection) Entry(stage Stage) string {
	if es := r.Entries[stage]; len(es) > 0 {
		return es[0]
	}
	return ""
}

// Group returns the bindings declared in one group.
func (r *Reflection) Group(group uint32) []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if b.Group == group {
			out = append(out, b)
		}
	}
	return out
}

func classify(addressSpace, typeName string) bindings.Kind {
	switch {
	case addressSpace == "uniform":
		return bindings.KindUniform
	case strings.HasPrefix(addressSpace, "storage") && strings.Contains(addressSpace, "read_write"):
		return bindings.KindStorage
	case strings.HasPrefix(addressSpace, "storage"):
		return bindings.KindReadOnlyStorage
	case strings.HasPrefix(typeName, "sampler"):
		return bindings.KindSampler
	default:
		return bindings.KindTexture
	}
}

func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		structs = append(structs, parsedStruct{name: m[1], fields: parseStructFields(m[2])})
	}
	return structs
}

func parseStructFields(body string) []parsedField {
	var fields []parsedField
	for _, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		fm := fieldRegex.FindStringSubmatch(part)
		if fm == nil {
			continue
		}
		f := parsedField{
			name:      fm[1],
			typeName:  strings.TrimSpace(fm[2]),
			location:  -1,
			isBuiltin: builtinRegex.MatchString(part),
		}
		if lm := locationRegex.FindStringSubmatch(part); lm != nil {
			f.location, _ = strconv.Atoi(lm[1])
		}
		fields = append(fields, f)
	}
	return fields
}

// vertexInput accepts structs with at least one @location member and no builtins; output
// structs always carry @builtin(position).
func vertexInput(ps parsedStruct) (VertexInput, bool) {
	vi := VertexInput{Name: ps.name}
	for _, f := range ps.fields {
		if f.isBuiltin || f.location < 0 {
			return VertexInput{}, false
		}
		l, ok := wgslBuiltinLayouts[f.typeName]
		if !ok {
			return VertexInput{}, false
		}
		vi.Attributes = append(vi.Attributes, VertexAttribute{Location: uint32(f.location), Type: f.typeName, Offset: vi.Stride})
		vi.Stride += l.Size
	}
	return vi, len(vi.Attributes) > 0
}

// parseWorkgroupSize reads @workgroup_size, resolving named constants. Missing dimensions are 1.
func parseWorkgroupSize(source string) [3]uint32 {
	out := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(source)
	if m == nil {
		return out
	}
	consts := map[string]uint64{}
	for _, c := range constRegex.FindAllStringSubmatch(source, -1) {
		v, _ := strconv.ParseUint(c[2], 10, 32)
		consts[c[1]] = v
	}
	for i := 0; i < 3; i++ {
		tok := m[i+1]
		if tok == "" {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimSuffix(tok, "u"), 10, 32); err == nil {
			out[i] = uint32(v)
		} else if v, ok := consts[tok]; ok {
			out[i] = uint32(v)
		}
	}
	return out
}
