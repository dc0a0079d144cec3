// Package shaderparams derives binding layouts from Go structs.
//
// A shader parameter struct lists its fields in binding order. Plain data
// fields are packed into a single uniform block using std140 rules;
// resource fields become descriptor bindings. The kind of a field comes
// from its struct tag:
//
//	type MaterialParams struct {
//		BaseColor [4]float32 `shader:"base_color"`
//		Roughness float32    `shader:"roughness"`
//		Albedo    any        `shader:"albedo,sampled_texture"`
//		Linear    any        `shader:"linear_sampler,sampler"`
//	}
//
// Untagged exported fields are uniform data named after the Go field.
// A tag of "-" skips the field. Resource fields that are arrays declare a
// descriptor array of that length.
package shaderparams
