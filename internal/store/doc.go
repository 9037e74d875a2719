// Package store keeps the outcomes of a dispatch run and streams them to
// subscribers.
//
// This package is internal to burstgate. The main components are:
//
//   - [Store]: Interface defining append, snapshot and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [OutcomeRecord]: Storage representation of one request outcome
//
// Records are kept in the order they were appended, which for a dispatch run
// is completion order. Subscribers receive records via channels with
// non-blocking sends (slow subscribers miss records rather than block the
// run).
package store
