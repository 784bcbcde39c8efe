// Package indexer defines the capability shared by the index maintainers
// of a library.
//
// Two implementations live in internal/index: one writes a header document
// per bibliographic entry, the other writes a document per page of every
// linked PDF. Both write into the same store and are composed by the
// index coordinator, which schedules their batches and enforces that a
// removal completes before a dependent add starts.
//
//	┌──────────────────┐
//	│   Coordinator    │  (schedules, orders, cancels)
//	└────────┬─────────┘
//	         │
//	┌────────▼─────────┐
//	│     Indexer      │  ← This package
//	│   (interface)    │
//	└────────┬─────────┘
//	         │
//	    ┌────┴──────┐
//	    │           │
//	┌───▼────┐ ┌────▼────┐
//	│ Fields │ │  PDFs   │
//	└────────┘ └─────────┘
package indexer
