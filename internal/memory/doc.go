// Package memory provides semantically searchable long-term memory,
// backed by an embedded vector database.
package memory
