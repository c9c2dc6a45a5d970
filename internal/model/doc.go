// Package model is the shared session state the relay patches.
//
// A tree is built from *Object (named attributes) and *Collection (ordered
// objects) nodes, with plain JSON values ([]any, map[string]any, string,
// float64, bool, nil) at the leaves. Both node types publish change
// notifications to subscribers.
//
// Conventions:
//   - Numbers are float64, as decoded from JSON
//   - Object identity within a collection is the "id" attribute
//   - Nothing here locks; one goroutine (the event loop) owns the tree
package model
