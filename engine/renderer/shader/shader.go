package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

// kernel is the implementation of the Kernel interface.
// It holds the pre-processed source and the layout metadata required for pipeline creation.
type kernel struct {
	key                        string
	source                     string
	bindGroupLayoutDescriptors map[int]gputypes.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	entryPoint                 string
	spirv                      []uint32

	pp PreProcessor
}

// Kernel defines the interface for a loaded and parsed WGSL compute kernel. It exposes the
// kernel's key, pre-processed source, entry point, bind group layout descriptors, workgroup
// size, and pre-processor declarations needed for pipeline creation and resource binding.
type Kernel interface {
	// Key retrieves the unique identifier for this kernel.
	//
	// Returns:
	//   - string: the kernel's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the kernel
	Source() string

	// BindGroupLayoutDescriptor retrieves the bind group layout descriptor for a group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - gputypes.BindGroupLayoutDescriptor: the descriptor for the group, or an empty descriptor if not declared
	BindGroupLayoutDescriptor(group int) gputypes.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors keyed by group index.
	//
	// Returns:
	//   - map[int]gputypes.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]gputypes.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name for a given group and binding index.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index for a given group and variable name.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name within the group
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable name was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// EntryPoint returns the @compute entry point name.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions, [1, 1, 1] when not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module returns a shader module descriptor for the kernel. Once Compile succeeds the
	// descriptor carries SPIR-V, before that it carries the WGSL source.
	//
	// Returns:
	//   - *gputypes.ShaderModuleDescriptor: the module descriptor labelled with the kernel key
	Module() *gputypes.ShaderModuleDescriptor

	// Compile compiles the WGSL source to SPIR-V with naga and caches the result.
	//
	// Returns:
	//   - error: the wrapped compiler error, if any
	Compile() error

	// SPIRV returns the compiled SPIR-V words, nil before a successful Compile.
	//
	// Returns:
	//   - []uint32: the SPIR-V binary as 32-bit words
	SPIRV() []uint32

	// Declarations returns the group and provider annotations parsed from the kernel source.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation
}

var _ Kernel = &kernel{}

// NewKernel pre-processes and parses a WGSL compute kernel.
//
// Parameters:
//   - key: a unique identifier for the kernel, used as the module and layout label
//   - source: the raw WGSL source with @oxy: annotations
//
// Returns:
//   - Kernel: the parsed kernel
//   - error: a pre-processing error, or an error if the source has no @compute entry point
func NewKernel(key, source string) (Kernel, error) {
	k := &kernel{
		key: key,
		pp:  NewPreProcessor(),
	}
	processed, err := k.pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to pre-process kernel %q: %w", key, err)
	}
	k.source = processed
	k.entryPoint = parseEntryPoint(processed)
	if k.entryPoint == "" {
		return nil, fmt.Errorf("shader: kernel %q has no @compute entry point", key)
	}
	k.workGroupSize = parseWorkgroupSize(processed)
	k.bindGroupLayoutDescriptors, k.bindingVarNames = parseBindGroupLayouts(processed, key, gputypes.ShaderStageCompute)
	return k, nil
}

func (k *kernel) Key() string {
	return k.key
}

func (k *kernel) Source() string {
	return k.source
}

func (k *kernel) EntryPoint() string {
	return k.entryPoint
}

func (k *kernel) WorkgroupSize() [3]uint32 {
	return k.workGroupSize
}

func (k *kernel) BindGroupLayoutDescriptor(group int) gputypes.BindGroupLayoutDescriptor {
	return k.bindGroupLayoutDescriptors[group]
}

func (k *kernel) BindGroupLayoutDescriptors() map[int]gputypes.BindGroupLayoutDescriptor {
	return k.bindGroupLayoutDescriptors
}

func (k *kernel) BindGroupVarName(group, binding int) string {
	if k.bindingVarNames[group] == nil {
		return ""
	}
	return k.bindingVarNames[group][binding]
}

func (k *kernel) BindGroupFromVarName(group int, varName string) (int, bool) {
	if k.bindingVarNames[group] == nil {
		return -1, false
	}
	for binding, name := range k.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (k *kernel) Module() *gputypes.ShaderModuleDescriptor {
	if k.spirv != nil {
		return &gputypes.ShaderModuleDescriptor{Label: k.key, Source: gputypes.ShaderSourceSPIRV{Code: k.spirv}}
	}
	return &gputypes.ShaderModuleDescriptor{Label: k.key, Source: gputypes.ShaderSourceWGSL{Code: k.source}}
}

func (k *kernel) Compile() error {
	if k.spirv != nil {
		return nil
	}
	bin, err := naga.Compile(k.source)
	if err != nil {
		return fmt.Errorf("shader: failed to compile kernel %q: %w", k.key, err)
	}
	if len(bin)%4 != 0 {
		return fmt.Errorf("shader: kernel %q produced %d bytes of SPIR-V, not a whole number of words", k.key, len(bin))
	}
	words := make([]uint32, len(bin)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(bin[4*i:])
	}
	k.spirv = words
	return nil
}

func (k *kernel) SPIRV() []uint32 {
	return k.spirv
}

func (k *kernel) Declarations() []Annotation {
	return k.pp.Declarations()
}
