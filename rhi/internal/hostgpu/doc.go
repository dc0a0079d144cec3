// Package hostgpu is the GPU timeline shared by the rhi backends.
//
// Backends translate rhi calls into their own native command lists. When a
// list is submitted, each native command is lowered to an operation on the
// memory model in this package and executed by the queue's worker
// goroutine, in submission order:
//
//	native command list ──► []Op ──► Queue worker ──► Image / buffer bytes
//	                                     │
//	                     waits Semaphores, signals Semaphores and Fence
//
// Only memory-visible work is executed here: copies, fills, clears,
// blits, mip reduction and acceleration structure property writes. Draws,
// dispatches and ray dispatches are recorded for tracing only.
package hostgpu
