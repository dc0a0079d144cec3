// Package rendergraph schedules one frame of GPU work.
//
// Passes declare the buffers and textures they read and write. The graph
// records them in the order they were added and, before each pass,
// transitions every declared resource into the access the pass asked for.
// Resources created with AddBuffer or AddTexture are transient: the graph
// allocates them for one Execute and recycles them across frames through
// a pool keyed by description. Imported resources are tracked but owned by
// the caller.
//
// Each pass owns one value of a caller-chosen type. The value is created
// when the pass is added, filled in during the build phase and handed to
// the execute callback:
//
//	type blurData struct{ src, dst rendergraph.TextureHandle }
//
//	b, data := rendergraph.AddComputePass[blurData](g, "blur")
//	data.src = b.ReadTexture(color, rhi.AccessSampledTextureRead)
//	data.dst = b.WriteTexture(tmp, rhi.AccessStorageWrite)
//	b.Execute(func(d *blurData, ctx *rendergraph.ComputePassContext) error {
//		...
//	})
//
// Handles are only meaningful for the build and execute cycle that
// produced them.
package rendergraph
