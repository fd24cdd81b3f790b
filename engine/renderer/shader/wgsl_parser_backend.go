package shader

import (
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

// scalarLayouts holds the host-shareable WGSL scalars. Vectors, matrices and arrays are
// derived from these.
var scalarLayouts = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},
}

// shorthandScalars maps the suffix of vec3f / mat4x4h style aliases to the scalar.
var shorthandScalars = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// roundUpAlign rounds value up to the next multiple of alignment, a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// vectorLayout returns the layout of an n-component vector of scalar s. A vec3 is
// aligned like a vec4.
func vectorLayout(n uint64, s wgslTypeLayout) wgslTypeLayout {
	align := n * s.size
	if n == 3 {
		align = 4 * s.size
	}
	return wgslTypeLayout{size: n * s.size, align: align}
}

// scalarParam resolves the element type of a vecN / matCxR / atomic spelling: either the
// <T> parameter or a one-letter shorthand suffix.
func scalarParam(rest string) (wgslTypeLayout, bool) {
	if inner, ok := strings.CutPrefix(rest, "<"); ok {
		l, found := scalarLayouts[strings.TrimSpace(strings.TrimSuffix(inner, ">"))]
		return l, found
	}
	if len(rest) == 1 {
		if name, ok := shorthandScalars[rest[0]]; ok {
			return scalarLayouts[name], true
		}
	}
	return wgslTypeLayout{}, false
}

// builtinLayout resolves scalars, vectors, matrices and atomics.
func builtinLayout(typeName string) (wgslTypeLayout, bool) {
	if l, ok := scalarLayouts[typeName]; ok {
		return l, true
	}
	if inner, ok := strings.CutPrefix(typeName, "atomic<"); ok {
		l, found := scalarLayouts[strings.TrimSuffix(inner, ">")]
		return l, found && l.size == 4
	}
	if rest, ok := strings.CutPrefix(typeName, "vec"); ok && len(rest) > 1 {
		n := uint64(rest[0] - '0')
		s, found := scalarParam(rest[1:])
		if !found || n < 2 || n > 4 {
			return wgslTypeLayout{}, false
		}
		return vectorLayout(n, s), true
	}
	if rest, ok := strings.CutPrefix(typeName, "mat"); ok && len(rest) > 3 && rest[1] == 'x' {
		cols, rows := uint64(rest[0]-'0'), uint64(rest[2]-'0')
		s, found := scalarParam(rest[3:])
		if !found || cols < 2 || cols > 4 || rows < 2 || rows > 4 {
			return wgslTypeLayout{}, false
		}
		col := vectorLayout(rows, s)
		return wgslTypeLayout{size: cols * roundUpAlign(col.align, col.size), align: col.align}, true
	}
	return wgslTypeLayout{}, false
}

// resolveTypeLayout resolves a WGSL type to its size and alignment. Runtime-sized arrays
// resolve to one element stride, the smallest useful binding.
//
// Parameters:
//   - typeName: e.g. "u32", "vec3f", "HZBParams", "array<vec2<u32>>"
//   - knownTypes: struct layouts resolved so far
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if l, ok := builtinLayout(typeName); ok {
		return l, true
	}
	if l, ok := knownTypes[typeName]; ok {
		return l, true
	}

	elem, count, ok := parseArrayType(typeName)
	if !ok {
		return wgslTypeLayout{}, false
	}
	el, ok := resolveTypeLayout(elem, knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(el.align, el.size)
	if count == 0 {
		return wgslTypeLayout{size: stride, align: el.align}, true
	}
	return wgslTypeLayout{size: count * stride, align: el.align}, true
}

// parseArrayType splits array<T, N> into T and N, and array<T> into T and 0.
func parseArrayType(typeName string) (elem string, count uint64, ok bool) {
	inner, found := strings.CutPrefix(typeName, "array<")
	if !found || !strings.HasSuffix(inner, ">") {
		return "", 0, false
	}
	inner = inner[:len(inner)-1]
	parts := splitAtTopLevelCommas(inner)
	elem = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return elem, 0, true
	}
	n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || n == 0 {
		return "", 0, false
	}
	return elem, n, true
}

// computeStructSizes lays out every struct of a module. A struct referencing another is
// resolved after it regardless of declaration order; structs with unknown or cyclic field
// types are left out.
//
// Parameters:
//   - structs: the struct blocks of the module
//
// Returns:
//   - map[string]wgslTypeLayout: layouts keyed by struct name
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	byName := make(map[string]parsedStruct, len(structs))
	for _, ps := range structs {
		byName[ps.name] = ps
	}

	resolved := make(map[string]wgslTypeLayout, len(structs))
	visiting := make(map[string]bool)
	var layoutStruct func(name string) bool
	layoutStruct = func(name string) bool {
		if _, ok := resolved[name]; ok {
			return true
		}
		ps, ok := byName[name]
		if !ok || visiting[name] {
			return false
		}
		visiting[name] = true
		defer delete(visiting, name)

		// nested structs first, wherever they are declared
		for _, f := range ps.fields {
			dep := f.typeName
			if elem, _, isArray := parseArrayType(dep); isArray {
				dep = elem
			}
			if _, isStruct := byName[dep]; isStruct && !layoutStruct(dep) {
				return false
			}
		}
		l, ok := structLayout(ps, resolved)
		if ok {
			resolved[name] = l
		}
		return ok
	}

	for _, ps := range structs {
		layoutStruct(ps.name)
	}
	return resolved
}

// structLayout places each field at its aligned offset and rounds the total up to the
// largest field alignment. A trailing runtime-sized array adds nothing beyond the fixed
// prefix unless it is the only member, in which case one element is the minimum size.
// Builtin inputs are not part of buffer memory and are skipped.
func structLayout(ps parsedStruct, known map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	align := uint64(1)

	for i, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		fl, ok := resolveTypeLayout(f.typeName, known)
		if !ok {
			return wgslTypeLayout{}, false
		}
		if _, count, isArray := parseArrayType(f.typeName); isArray && count == 0 {
			if i != len(ps.fields)-1 {
				return wgslTypeLayout{}, false
			}
			align = max(align, fl.align)
			if offset == 0 {
				return fl, true
			}
			return wgslTypeLayout{size: roundUpAlign(align, offset), align: align}, true
		}
		offset = roundUpAlign(fl.align, offset) + fl.size
		align = max(align, fl.align)
	}
	return wgslTypeLayout{size: roundUpAlign(align, offset), align: align}, true
}

// classifyResource builds the layout entry for one module-scope resource.
//
// Parameters:
//   - binding: the @binding index
//   - visibility: the stages the group is visible to
//   - addressSpace: "uniform", "storage" or "storage, <access>"; empty for handle types
//   - typeName: the declared type, e.g. "HZBParams", "texture_2d<f32>", "sampler"
//
// Returns:
//   - gputypes.BindGroupLayoutEntry: the entry with exactly one layout set, or none for
//     types the pipeline never binds
func classifyResource(binding uint32, visibility gputypes.ShaderStages, addressSpace, typeName string) gputypes.BindGroupLayoutEntry {
	entry := gputypes.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}

	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		return entry
	case "storage":
		t := gputypes.BufferBindingTypeReadOnlyStorage
		if strings.TrimSpace(access) == "read_write" {
			t = gputypes.BufferBindingTypeStorage
		}
		entry.Buffer = &gputypes.BufferBindingLayout{Type: t}
		return entry
	}

	base, params := splitTypeParams(typeName)
	switch {
	case base == "sampler":
		entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeNonFiltering}
	case base == "sampler_comparison":
		entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeComparison}
	case strings.HasPrefix(base, "texture_storage_"):
		entry.StorageTexture = storageTextureLayout(base, params)
	case strings.HasPrefix(base, "texture_"):
		entry.Texture = textureLayout(base, params)
	}
	return entry
}

// textureLayout describes a sampled or depth texture binding.
func textureLayout(base, param string) *gputypes.TextureBindingLayout {
	layout := &gputypes.TextureBindingLayout{}
	if info, ok := wgslSampledTextureMap[base]; ok {
		layout.ViewDimension = info.viewDimension
		layout.Multisampled = info.multisampled
	}
	if strings.HasPrefix(base, "texture_depth_") {
		layout.SampleType = gputypes.TextureSampleTypeDepth
	} else if st, ok := wgslSampleTypeMap[param]; ok {
		layout.SampleType = st
	}
	return layout
}

// storageTextureLayout describes a texture_storage_* binding from its <format, access>.
func storageTextureLayout(base, params string) *gputypes.StorageTextureBindingLayout {
	layout := &gputypes.StorageTextureBindingLayout{ViewDimension: wgslStorageTextureDimMap[base]}
	format, access, _ := strings.Cut(params, ",")
	if f, ok := wgslTexelFormatMap[strings.TrimSpace(format)]; ok {
		layout.Format = f
	}
	if a, ok := wgslStorageAccessMap[strings.TrimSpace(access)]; ok {
		layout.Access = a
	}
	return layout
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32"). Types without
// parameters return an empty parameter string.
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes line comments and nested block comments in one scan. Newlines
// are kept so line-oriented parsing still sees the same lines.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case depth > 0 && c == '*' && next == '/':
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			for i+1 < len(source) && source[i+1] != '\n' {
				i++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits at commas outside angle brackets, so a struct body field
// typed array<Cluster, 4> stays in one piece.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch {
		case c == '<':
			depth++
		case c == '>' && depth > 0:
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
