package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-meshlet/engine/asset"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/camera"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/hzb"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
)

// registryEntry is a struct definition owned by a Go GPU type. Source is the same WGSL
// the type's Marshal layout is checked against.
type registryEntry struct {
	Source string
	Type   string
}

type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	declarations []Annotation
}

// PreProcessor expands kernel annotations into WGSL and records the binding declarations
// they make.
type PreProcessor interface {
	// Process returns source with every annotation expanded. Each struct is pasted at its
	// first include only. Declarations from a previous call are discarded.
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations of the last Process call in
	// source order.
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor returns a PreProcessor that knows every GPU struct of the pipeline.
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgDispatchArgs: {queue.GPUDispatchArgsSource, "DispatchArgs"},
			AnnotationArgDrawArgs:     {queue.GPUDrawArgsSource, "DrawArgs"},
			AnnotationArgPassTotals:   {queue.GPUPassTotalsSource, "PassTotals"},
			AnnotationArgHZBParams:    {hzb.GPUParamsSource, "HZBParams"},
			AnnotationArgCullView:     {camera.GPUCullViewSource, "CullView"},
			AnnotationArgMeshlet:      {asset.GPUMeshletSource, "Meshlet"},
			AnnotationArgBVHNode:      {asset.GPUBVHNodeSource, "BVHNode"},
			annotationArgVertex:       {asset.GPUVertexSource, "Vertex"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	var sb strings.Builder
	sb.Grow(len(source))
	seen := make(map[AnnotationArg]bool)

	for i, line := range strings.Split(source, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			sb.WriteString(line)
			continue
		}

		expanded, err := p.expand(a, seen)
		if err != nil {
			return "", err
		}
		sb.WriteString(expanded)
	}
	return sb.String(), nil
}

// expand returns the WGSL that replaces one annotation line.
func (p *preProcessor) expand(a *Annotation, seen map[AnnotationArg]bool) (string, error) {
	switch a.Type {
	case annotationTypeInclude:
		entry, ok := p.structRegistry[a.Args[0]]
		if !ok {
			return "", fmt.Errorf("line %d: no WGSL registered for %q", a.Line, a.Args[0])
		}
		if seen[a.Args[0]] {
			return "", nil
		}
		seen[a.Args[0]] = true
		return entry.Source, nil
	case AnnotationTypeBindingGroup:
		p.declarations = append(p.declarations, *a)
		return fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
			*a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], p.wgslType(a.Args[2])), nil
	case AnnotationTypeProvider:
		p.declarations = append(p.declarations, *a)
		return "", nil
	}
	return "", fmt.Errorf("line %d: cannot expand %q annotation", a.Line, a.Type)
}

// wgslType maps a struct key, or array<key>, to its WGSL spelling.
func (p *preProcessor) wgslType(arg AnnotationArg) string {
	if inner, ok := strings.CutPrefix(string(arg), "array<"); ok {
		return "array<" + p.structRegistry[AnnotationArg(strings.TrimSuffix(inner, ">"))].Type + ">"
	}
	return p.structRegistry[arg].Type
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
