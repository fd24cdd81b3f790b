package shader

import (
	"embed"
	"errors"
	"fmt"
	"sort"
)

// Keys of the bookkeeping kernels shipped with the renderer. The renderer runs their CPU
// counterparts itself and never dispatches them; a host driving the pipeline on a GPU
// binds them through Renderer.Kernels. Each matches its counterpart's workgroup size and
// GPU struct layouts:
//
//	hzb_downsample    hzb.Pyramid.Build
//	remap_dispatch    queue.DispatchArgs.Remap
//	fill_counts       queue.FillCounts
//	clear_visibility  visbuffer.Buffer.Clear
const (
	KernelHZBDownsample   = "hzb_downsample"
	KernelRemapDispatch   = "remap_dispatch"
	KernelFillCounts      = "fill_counts"
	KernelClearVisibility = "clear_visibility"
)

// ErrUnknownKernel is returned when a kernel key has no embedded source.
var ErrUnknownKernel = errors.New("shader: unknown kernel")

//go:embed assets/*.wgsl
var kernelSources embed.FS

// KernelKeys returns the keys of all embedded kernels in sorted order.
func KernelKeys() []string {
	entries, err := kernelSources.ReadDir("assets")
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		keys = append(keys, name[:len(name)-len(".wgsl")])
	}
	sort.Strings(keys)
	return keys
}

// LoadKernel parses the embedded kernel with the given key.
//
// Parameters:
//   - key: one of the Kernel* constants
//
// Returns:
//   - Kernel: the parsed kernel, not yet compiled
//   - error: ErrUnknownKernel (wrapped) for an unknown key, or a pre-processing error
func LoadKernel(key string) (Kernel, error) {
	src, err := kernelSources.ReadFile("assets/" + key + ".wgsl")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, key)
	}
	return NewKernel(key, string(src))
}

// LoadKernels parses every embedded kernel and optionally compiles each one to SPIR-V.
//
// Parameters:
//   - compile: whether to run Compile on each kernel
//
// Returns:
//   - map[string]Kernel: the kernels keyed by kernel key
//   - error: the first load or compile error
func LoadKernels(compile bool) (map[string]Kernel, error) {
	keys := KernelKeys()
	kernels := make(map[string]Kernel, len(keys))
	for _, key := range keys {
		k, err := LoadKernel(key)
		if err != nil {
			return nil, err
		}
		if compile {
			if err := k.Compile(); err != nil {
				return nil, err
			}
		}
		kernels[key] = k
	}
	return kernels, nil
}
