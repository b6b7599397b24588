package shader

import (
	"strconv"
	"strings"
)

// TypeLayout is the size and alignment of a WGSL type in host-shareable memory.
type TypeLayout struct {
	Size  uint64
	Align uint64
}

// wgslBuiltinLayouts covers the scalar, vector, matrix and atomic types the engine's shaders use.
var wgslBuiltinLayouts = map[string]TypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},
	"vec2<u32>": {8, 8},
	"vec3<u32>": {12, 16},
	"vec4<u32>": {16, 16},
	"vec2<i32>": {8, 8},
	"vec3<i32>": {12, 16},
	"vec4<i32>": {16, 16},

	"mat3x3<f32>": {48, 16},
	"mat4x4<f32>": {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

func roundUp(align, v uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// resolveLayout resolves a type against the builtins and already resolved structs. Runtime-sized
// arrays resolve to one element stride.
func resolveLayout(typeName string, known map[string]TypeLayout) (TypeLayout, bool) {
	if l, ok := wgslBuiltinLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := known[typeName]; ok {
		return l, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return TypeLayout{}, false
	}
	elem, count, fixed := strings.Cut(inner[:len(inner)-1], ",")
	el, ok := resolveLayout(strings.TrimSpace(elem), known)
	if !ok {
		return TypeLayout{}, false
	}
	stride := roundUp(el.Align, el.Size)
	if !fixed {
		return TypeLayout{stride, el.Align}, true
	}
	n, err := strconv.ParseUint(strings.TrimSpace(count), 10, 64)
	if err != nil {
		return TypeLayout{}, false
	}
	return TypeLayout{n * stride, el.Align}, true
}

// structLayout lays fields out at their aligned offsets and rounds the total up to the largest
// field alignment. Builtin IO fields take no buffer space.
func structLayout(ps parsedStruct, known map[string]TypeLayout) (TypeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		fl, ok := resolveLayout(f.typeName, known)
		if !ok {
			return TypeLayout{}, false
		}
		offset = roundUp(fl.Align, offset) + fl.Size
		align = max(align, fl.Align)
	}
	return TypeLayout{roundUp(align, offset), align}, true
}

// structLayouts resolves every struct, repeating until no more resolve so that structs may
// reference structs declared after them.
func structLayouts(structs []parsedStruct) map[string]TypeLayout {
	resolved := make(map[string]TypeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		next := pending[:0]
		for _, ps := range pending {
			if l, ok := structLayout(ps, resolved); ok {
				resolved[ps.name] = l
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return resolved
}

// stripComments removes line comments and nested block comments.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			case depth == 0 && source[i] == '/' && source[i+1] == '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitTopLevel splits at commas outside angle brackets, so array<T, N> stays whole.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
