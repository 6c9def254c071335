// Package types defines the bookmark tree's data model: the Node union
// (folder or bookmark), the Operation union dispatched through the
// operation log, and the Envelope that wraps an Operation with log
// metadata. Every other package in this module stores and moves these
// types by id, never by pointer graph.
package types
