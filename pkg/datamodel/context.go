package datamodel

import "context"

// FabricIndex identifies the accessing fabric of an interaction. Zero means
// no fabric, as on a PASE session before AddNOC.
type FabricIndex uint8

type fabricIndexKey struct{}

// WithFabricIndex returns a copy of ctx carrying the accessing fabric. The
// stack sets it before InvokeCommand and WriteAttribute.
func WithFabricIndex(ctx context.Context, idx FabricIndex) context.Context {
	return context.WithValue(ctx, fabricIndexKey{}, idx)
}

// FabricIndexFromContext returns the accessing fabric stored in ctx, or 0.
func FabricIndexFromContext(ctx context.Context) FabricIndex {
	idx, _ := ctx.Value(fabricIndexKey{}).(FabricIndex)
	return idx
}
