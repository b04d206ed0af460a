// Package docstore is the document persistence layer behind every entity the
// smart home core stores: user profiles, homes, rooms, devices and voltage
// readings.
//
// A document is a flat set of Fields addressed by collection and id. The
// store assigns ids and a strictly increasing creation stamp, merges partial
// updates, treats deletes of missing ids as success, and publishes every
// committed write on a Feed.
//
// Two backends implement Store:
//
//   - SQLiteStore keeps all collections in one table with a JSON data column
//   - MongoStore maps each collection to a MongoDB collection
//
// Live queries are built on top of any Store with Subscribe:
//
//	sub, err := docstore.Subscribe(ctx, store, "devices",
//	    docstore.Query{Field: "roomId", Value: roomID},
//	    func(records []docstore.Record, err error) {
//	        // full snapshot, newest first; err != nil is terminal
//	    })
//	defer sub.Unsubscribe()
//
// Each subscription delivers on its own goroutine, so snapshots for one
// subscription never arrive out of order. No delivery starts after
// Unsubscribe returns.
package docstore
