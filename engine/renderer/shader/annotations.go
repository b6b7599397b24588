// annotations.go defines the @oxy: annotations the pre-processor expands. Annotations are
// single-line WGSL comments:
//
//	//@oxy:include <struct>                  injects a registered struct definition
//	//@oxy:binding <contract> <slot> <type>  declares a contract slot with its fixed group and binding
package shader

import (
	"strings"

	"github.com/cockroachdb/errors"
)

const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBinding generates a @group/@binding declaration from the bindings contract.
	AnnotationTypeBinding AnnotationType = "binding"
)

// Annotation is one parsed @oxy: line.
type Annotation struct {
	Type AnnotationType
	Args []string
	Line int
}

var annotationArity = map[AnnotationType]int{
	annotationTypeInclude: 1,
	AnnotationTypeBinding: 3,
}

// parseAnnotation parses a WGSL source line. Lines that are not annotations yield nil.
//
// Parameters:
//   - line: one source line
//   - lineNum: 1-based line number for error messages
//
// Returns:
//   - *Annotation: the annotation, or nil
//   - error: an annotation with an unknown type or the wrong number of arguments
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	body, ok := strings.CutPrefix(trimmed, "//")
	if !ok {
		return nil, nil
	}
	body, ok = strings.CutPrefix(strings.TrimSpace(body), annotationPrefix)
	if !ok {
		return nil, nil
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, errors.Newf("line %d: empty annotation", lineNum)
	}
	a := &Annotation{Type: AnnotationType(fields[0]), Args: fields[1:], Line: lineNum}
	want, known := annotationArity[a.Type]
	if !known {
		return nil, errors.Newf("line %d: unknown annotation type %q", lineNum, a.Type)
	}
	if len(a.Args) != want {
		return nil, errors.Newf("line %d: @oxy:%s takes %d arguments, got %d", lineNum, a.Type, want, len(a.Args))
	}
	return a, nil
}
