package docstore

// Field transforms are sentinel values placed in create/update payloads and
// resolved atomically at commit time by the store.

type incrementTransform struct {
	delta int64
}

type arrayUnionTransform struct {
	elems []any
}

type arrayRemoveTransform struct {
	elems []any
}

type serverTimestampTransform struct{}

type deleteFieldTransform struct{}

// Increment atomically adds delta to a numeric field, treating a missing
// field as zero.
func Increment(delta int64) any {
	return incrementTransform{delta: delta}
}

// ArrayUnion atomically adds elements to an array field, skipping elements
// already present.
func ArrayUnion(elems ...any) any {
	return arrayUnionTransform{elems: elems}
}

// ArrayRemove atomically removes elements from an array field.
func ArrayRemove(elems ...any) any {
	return arrayRemoveTransform{elems: elems}
}

// ServerTimestamp resolves to the store's commit time. All transforms in one
// batch resolve to the same instant.
func ServerTimestamp() any {
	return serverTimestampTransform{}
}

// DeleteField removes a field from the document.
func DeleteField() any {
	return deleteFieldTransform{}
}
