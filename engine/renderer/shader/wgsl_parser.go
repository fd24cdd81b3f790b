package shader

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

type sampledTextureInfo struct {
	viewDimension gputypes.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout is a host-shareable size and alignment in bytes.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

type parsedStruct struct {
	name   string
	fields []parsedField
}

// Texture, sampler and texel-format keywords the binding parser recognizes.
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":                    {gputypes.TextureViewDimension1D, false},
	"texture_2d":                    {gputypes.TextureViewDimension2D, false},
	"texture_2d_array":              {gputypes.TextureViewDimension2DArray, false},
	"texture_3d":                    {gputypes.TextureViewDimension3D, false},
	"texture_cube":                  {gputypes.TextureViewDimensionCube, false},
	"texture_multisampled_2d":       {gputypes.TextureViewDimension2D, true},
	"texture_depth_2d":              {gputypes.TextureViewDimension2D, false},
	"texture_depth_2d_array":        {gputypes.TextureViewDimension2DArray, false},
	"texture_depth_multisampled_2d": {gputypes.TextureViewDimension2D, true},
}

var wgslStorageTextureDimMap = map[string]gputypes.TextureViewDimension{
	"texture_storage_1d":       gputypes.TextureViewDimension1D,
	"texture_storage_2d":       gputypes.TextureViewDimension2D,
	"texture_storage_2d_array": gputypes.TextureViewDimension2DArray,
	"texture_storage_3d":       gputypes.TextureViewDimension3D,
}

// f32 maps to unfilterable: r32float needs an optional feature to be filtered.
var wgslSampleTypeMap = map[string]gputypes.TextureSampleType{
	"f32": gputypes.TextureSampleTypeUnfilterableFloat,
	"i32": gputypes.TextureSampleTypeSint,
	"u32": gputypes.TextureSampleTypeUint,
}

var wgslStorageAccessMap = map[string]gputypes.StorageTextureAccess{
	"write":      gputypes.StorageTextureAccessWriteOnly,
	"read":       gputypes.StorageTextureAccessReadOnly,
	"read_write": gputypes.StorageTextureAccessReadWrite,
}

var wgslTexelFormatMap = map[string]gputypes.TextureFormat{
	"r32uint":  gputypes.TextureFormatR32Uint,
	"r32float": gputypes.TextureFormatR32Float,
	"rg32uint": gputypes.TextureFormatRG32Uint,
}

var (
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// attributes, then name: type
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> params: HZBParams;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseBindGroupLayouts derives one layout descriptor per @group from the module-scope
// resource declarations of source. Buffer entries get the resolved size of their type as
// MinBindingSize. The second result names the variable behind each group and binding.
func parseBindGroupLayouts(source, label string, visibility gputypes.ShaderStages) (map[int]gputypes.BindGroupLayoutDescriptor, map[int]map[int]string) {
	cleaned := stripComments(source)
	structSizes := computeStructSizes(parseStructBlocks(cleaned))

	layouts := make(map[int]gputypes.BindGroupLayoutDescriptor)
	varNames := make(map[int]map[int]string)
	for _, m := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		typeName := strings.TrimSpace(m[5])

		entry := classifyResource(uint32(binding), visibility, strings.TrimSpace(m[3]), typeName)
		if entry.Buffer != nil {
			if l, ok := resolveTypeLayout(typeName, structSizes); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}

		desc, ok := layouts[group]
		if !ok {
			desc.Label = label + "_group_" + strconv.Itoa(group)
			varNames[group] = make(map[int]string)
		}
		desc.Entries = append(desc.Entries, entry)
		layouts[group] = desc
		varNames[group][binding] = m[4]
	}

	for _, desc := range layouts {
		slices.SortFunc(desc.Entries, func(a, b gputypes.BindGroupLayoutEntry) int {
			return cmp.Compare(a.Binding, b.Binding)
		})
	}
	return layouts, varNames
}

// parseWorkgroupSize reads @workgroup_size. Missing dimensions, or a missing attribute,
// count as 1.
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	match := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseEntryPoint returns the name of the first @compute function, or "".
func parseEntryPoint(source string) string {
	if match := computeEntryRegex.FindStringSubmatch(stripComments(source)); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks expects comment-free source.
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		fields = append(fields, parsedField{
			name:      fm[1],
			typeName:  strings.TrimSpace(fm[2]),
			isBuiltin: builtinRegex.MatchString(line),
		})
	}
	return fields
}
