// Package location provides the home and room hierarchy.
//
// A user owns Homes; each Home contains Rooms; devices live in rooms (see
// package device). Reference lists are never stored on the parent: the rooms
// of a home are whatever room documents name it as homeId, so there is no
// second copy to drift out of sync.
//
// Deleting a home deletes its rooms, and deleting a room deletes its devices
// through the DeviceDeleter supplied by the caller.
//
// # Thread Safety
//
// Repositories hold no mutable state beyond their collaborators and are safe
// for concurrent use.
package location
