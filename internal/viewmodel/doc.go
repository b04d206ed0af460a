// Package viewmodel holds per-collection state for a presentation layer.
//
// There is one model per list a screen shows:
//
//	HomesModel   homes of the signed-in user   live subscription
//	RoomsModel   rooms of one home             one-shot fetch, local edits
//	DevicesModel devices of one room           live subscription
//
// A model is pointed at its parent with SetParent. An empty parent clears
// the list and releases the subscription; a new parent releases the old
// subscription before the next one opens, so a model never holds more than
// one. Deliveries from a released subscription are recognised by their
// generation and dropped.
//
// Consumers read State or register with Observe. Observers run on the
// goroutine that caused the change, one at a time and in order, and must
// not call back into the same model.
//
// Mutations delegate to the repositories and return their errors. Models
// backed by a subscription never edit their list themselves; the next
// snapshot is the only way their state changes.
package viewmodel
