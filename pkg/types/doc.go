// Package types defines the document model, the Store interface, plan
// configuration and the standard errors shared by every coachdb package.
//
// A Store is the thin client over the managed document database. Documents
// live in collections addressed by slash-separated paths; a collection may be
// nested under a document (a subcollection), for example
// "clients/c1/workouts".
package types
