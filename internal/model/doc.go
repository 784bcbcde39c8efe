// Package model holds the bibliographic library that the indexers read:
// entries with their field maps, linked-file descriptors, the YAML library
// format and the resolver that turns file links into paths on disk.
package model
