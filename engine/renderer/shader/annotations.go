// Kernel annotations are one-line WGSL comments of the form //@oxy:<kind> <args...>. The
// pre-processor expands them into struct definitions and binding declarations, and the
// renderer reads the resulting declarations to wire buffers to bind group slots.
package shader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const annotationPrefix = "@oxy:"

// ErrMalformedAnnotation is wrapped by every annotation parse error.
var ErrMalformedAnnotation = errors.New("shader: malformed annotation")

// AnnotationType is the <kind> word following the annotation prefix.
type AnnotationType string

const (
	// annotationTypeInclude pastes a registered struct definition into the kernel once.
	//
	//	//@oxy:include meshlet
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup emits a @group/@binding variable typed by a registered
	// struct, or an array of one.
	//
	//	//@oxy:group 1 2 storage_read meshlets array<meshlet>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider tags a hand-written binding with the pipeline resource that
	// backs it. It produces no WGSL.
	//
	//	//@oxy:provider 0 1 depth_pyramid texels
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation is one parsed kernel annotation.
type Annotation struct {
	Type AnnotationType

	// Args by type:
	//   include:  struct key
	//   group:    address space, variable name, struct key or array<struct key>
	//   provider: provider identity, optional binding role
	Args []AnnotationArg

	// Line is 1-based.
	Line int

	// Group and Binding are nil for include annotations.
	Group   *int
	Binding *int
}

// AnnotationArg is an annotation argument keyword.
type AnnotationArg string

// Struct keys. Each names a GPU type whose WGSL definition is embedded by its package.
const (
	AnnotationArgDispatchArgs AnnotationArg = "dispatch_args"
	AnnotationArgDrawArgs     AnnotationArg = "draw_args"
	AnnotationArgPassTotals   AnnotationArg = "pass_totals"
	AnnotationArgHZBParams    AnnotationArg = "hzb_params"
	AnnotationArgCullView     AnnotationArg = "cull_view"
	AnnotationArgMeshlet      AnnotationArg = "meshlet"
	AnnotationArgBVHNode      AnnotationArg = "bvh_node"
	annotationArgVertex       AnnotationArg = "vertex"
)

// Address spaces accepted by group annotations.
const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// Provider identities and the roles a provider's bindings can play.
const (
	// AnnotationArgVisibilityBuffer is the packed 64-bit key buffer.
	AnnotationArgVisibilityBuffer AnnotationArg = "visibility_buffer"
	// AnnotationArgDepthPyramid is the HZB, every mip in one flat texel array.
	AnnotationArgDepthPyramid AnnotationArg = "depth_pyramid"

	AnnotationArgKeys   AnnotationArg = "keys"
	AnnotationArgTexels AnnotationArg = "texels"
)

type argSet map[AnnotationArg]struct{}

func newArgSet(args ...AnnotationArg) argSet {
	s := make(argSet, len(args))
	for _, a := range args {
		s[a] = struct{}{}
	}
	return s
}

func (s argSet) has(word string) bool {
	_, ok := s[AnnotationArg(word)]
	return ok
}

// validStructTypes must stay in step with the pre-processor's struct registry.
var (
	validStructTypes = newArgSet(
		AnnotationArgDispatchArgs, AnnotationArgDrawArgs, AnnotationArgPassTotals,
		AnnotationArgHZBParams, AnnotationArgCullView, AnnotationArgMeshlet,
		AnnotationArgBVHNode, annotationArgVertex,
	)
	validAddressSpaces = newArgSet(
		annotationArgStorageTypeUniform, annotationArgStorageTypeRead, annotationArgStorageTypeReadWrite,
	)
	validProviderIdentities = newArgSet(AnnotationArgVisibilityBuffer, AnnotationArgDepthPyramid)
	validBindingRoles       = newArgSet(AnnotationArgKeys, AnnotationArgTexels)
)

// annotationParsers receive the words after the kind.
var annotationParsers = map[AnnotationType]func(words []string, a *Annotation) error{
	annotationTypeInclude:      parseInclude,
	AnnotationTypeBindingGroup: parseGroup,
	AnnotationTypeProvider:     parseProvider,
}

// parseAnnotation returns nil, nil for lines without the annotation prefix.
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	_, rest, ok := strings.Cut(strings.TrimSpace(line), annotationPrefix)
	if !ok {
		return nil, nil
	}
	words := strings.Fields(rest)
	if len(words) == 0 {
		return nil, annotationError(lineNum, "no annotation kind")
	}
	kind := AnnotationType(words[0])
	parse, known := annotationParsers[kind]
	if !known {
		return nil, annotationError(lineNum, "unknown kind %q", words[0])
	}
	a := &Annotation{Type: kind, Line: lineNum}
	if err := parse(words[1:], a); err != nil {
		return nil, annotationError(lineNum, "%s: %v", kind, err)
	}
	return a, nil
}

func annotationError(lineNum int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedAnnotation, lineNum, fmt.Sprintf(format, args...))
}

// include <struct>
func parseInclude(words []string, a *Annotation) error {
	if len(words) != 1 {
		return fmt.Errorf("want 1 argument, got %d", len(words))
	}
	if !validStructTypes.has(words[0]) {
		return fmt.Errorf("no struct named %q", words[0])
	}
	a.Args = []AnnotationArg{AnnotationArg(words[0])}
	return nil
}

// group <group> <binding> <address space> <name> <struct | array<struct>>
func parseGroup(words []string, a *Annotation) error {
	if len(words) != 5 {
		return fmt.Errorf("want 5 arguments, got %d", len(words))
	}
	if err := parseGroupBindingInto(words[0], words[1], a); err != nil {
		return err
	}
	if !validAddressSpaces.has(words[2]) {
		return fmt.Errorf("no address space named %q", words[2])
	}
	elem := words[4]
	if inner, isArray := strings.CutPrefix(elem, "array<"); isArray {
		elem = strings.TrimSuffix(inner, ">")
	}
	if !validStructTypes.has(elem) {
		return fmt.Errorf("no struct named %q", elem)
	}
	a.Args = []AnnotationArg{AnnotationArg(words[2]), AnnotationArg(words[3]), AnnotationArg(words[4])}
	return nil
}

// provider <group> <binding> <identity> [role]
func parseProvider(words []string, a *Annotation) error {
	if len(words) != 3 && len(words) != 4 {
		return fmt.Errorf("want 3 or 4 arguments, got %d", len(words))
	}
	if err := parseGroupBindingInto(words[0], words[1], a); err != nil {
		return err
	}
	if !validProviderIdentities.has(words[2]) {
		return fmt.Errorf("no provider named %q", words[2])
	}
	a.Args = []AnnotationArg{AnnotationArg(words[2])}
	if len(words) == 4 {
		if !validBindingRoles.has(words[3]) {
			return fmt.Errorf("no binding role named %q", words[3])
		}
		a.Args = append(a.Args, AnnotationArg(words[3]))
	}
	return nil
}

func parseGroupBindingInto(groupWord, bindingWord string, a *Annotation) error {
	group, binding, err := parseGroupBinding(groupWord, bindingWord)
	if err != nil {
		return err
	}
	a.Group, a.Binding = &group, &binding
	return nil
}

func parseGroupBinding(groupWord, bindingWord string) (group, binding int, err error) {
	if group, err = strconv.Atoi(groupWord); err != nil || group < 0 {
		return 0, 0, fmt.Errorf("bad group index %q", groupWord)
	}
	if binding, err = strconv.Atoi(bindingWord); err != nil || binding < 0 {
		return 0, 0, fmt.Errorf("bad binding index %q", bindingWord)
	}
	return group, binding, nil
}
