package gpu

// Per-ray device footprint of a task workspace. Must match the buffer
// layouts in shaders/raymarch.wgsl.
const (
	// rayIndexBytes is the u32 ray index uploaded per ray.
	rayIndexBytes = 4

	// rayScratchBytes is the march state per ray: origin+tmin and
	// direction+tmax, two vec4<f32>.
	rayScratchBytes = 32

	// radianceBytes is the accumulated output per ray, rgba vec4<f32>.
	radianceBytes = 16

	// bytesPerRay is the total workspace cost of one ray.
	bytesPerRay = rayIndexBytes + rayScratchBytes + radianceBytes

	// paramsBufferBytes is the fixed uniform buffer size per workspace.
	paramsBufferBytes = 256
)

// Auto batch sizing policy (batch size 0 at construction): one context per
// full-HD workspace the budget can hold, clamped to [1, maxAutoBatchSize].
const (
	autoSizeReferenceRays = 1920 * 1080
	maxAutoBatchSize      = 16
)

// workspaceBytes returns the device memory needed for a task of rayCount
// rays, 4-byte aligned per buffer.
func workspaceBytes(rayCount uint64) uint64 {
	return align4(rayCount*rayIndexBytes) +
		align4(rayCount*rayScratchBytes) +
		align4(rayCount*radianceBytes) +
		paramsBufferBytes
}

// align4 rounds n up to a multiple of 4, the copy alignment wgpu requires.
func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// poolCapacity returns the largest context pool a budget of budgetBytes can
// back, one full-HD workspace per context, with a floor of one context.
// NewExecutor enforces this at pool construction so an oversized pool fails
// before any device work is issued.
func poolCapacity(budgetBytes uint64) int {
	ref := workspaceBytes(autoSizeReferenceRays)
	n := int(budgetBytes / ref)
	if n < 1 {
		return 1
	}
	return n
}

// autoBatchSize picks a context count for a device budget of budgetBytes.
func autoBatchSize(budgetBytes uint64) int {
	n := poolCapacity(budgetBytes)
	if n > maxAutoBatchSize {
		return maxAutoBatchSize
	}
	return n
}
