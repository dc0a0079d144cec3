// Package shadercompiler turns WGSL source into the shader binaries the
// RHI backends consume: SPIR-V for Vulkan and DXIL containers for D3D12.
//
// Compilation is the one expected failure in the rendering stack. Compile
// returns the compiler diagnostics as an error wrapping ErrCompile so that
// callers can report them and keep running.
//
// Compiled modules are cached by source digest, entry point, stage and
// target.
package shadercompiler
