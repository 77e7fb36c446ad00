// Package models defines the core domain models for the shared trip planner.
//
// # Document Layout
//
// Every entity belongs to exactly one Document (the shared trip), stored in the
// remote tree under trips/{documentID}:
//   - info: the TripInfo singleton, replaced wholesale on every save
//   - places, expenses, checklist, wishlist: mappings from a store-generated
//     key to entity fields
//   - members: a mapping from participant ID to Member presence record
//
// # Identity
//
// Non-singleton entities are identified by (collection, remote key). The key is
// assigned by the store on insert, never reused or edited, and is carried in the
// ID field of the Go value only (it is not part of the stored fields).
//
// Members are the exception: their key is the participant ID resolved by the
// identity package.
//
// # Design Principles
//
// 1. **Explicit shapes**: each collection has its own record type with JSON tags
// matching the stored field names
// 2. **Validation at the edge**: drafts carry validate tags checked by the
// dispatcher before anything is written
// 3. **Last write wins**: nothing here merges concurrent edits
package models
