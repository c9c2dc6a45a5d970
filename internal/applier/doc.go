// Package applier applies relay operations to registered model trees.
//
// The first path segment names a root in the Registry. The remaining
// segments, except the last, walk down through objects, collections and
// plain values. The last segment names the property being mutated; a
// missing or null last segment makes the walked-to value the target.
//
// Supported ops:
//
//	set     replace a property, or the whole target when unnamed
//	unset   remove a property (a name is required)
//	insert  add to a collection or plain sequence at pos, or append
//	delete  remove by exactly one of pos, findWhere or value
//
// A failed operation is logged and dropped; it never affects the
// connection. Applying the same operations to the same initial tree always
// produces the same tree.
package applier
