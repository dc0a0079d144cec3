// Package resource wraps RHI buffers and textures with the descriptor
// views the renderer binds.
//
// Views are cached per resource by their structural key, so asking twice
// for the same view returns the same descriptor handle. The cache lives
// exactly as long as the wrapped RHI object: Destroy frees every cached
// descriptor together with the resource.
//
// BufferSuballocator hands out aligned ranges of large base buffers with a
// lowest-address-first policy.
package resource
