package orchestrate

import (
	"strings"

	"github.com/Sriram-PR/sitemap-gen/pkg/emit"
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
)

// rootBaseName is the file name of the published entry point without extension
var rootBaseName = strings.TrimSuffix(sitemap.RootFileName, ".xml")

// RootIndex accumulates one entry per emitted batch. It has a single owner and is not
// safe for concurrent use; parallel batches hand their entries back to the coordinator.
type RootIndex struct {
	doc *sitemap.Index
}

// NewRootIndex creates an empty root index
func NewRootIndex() *RootIndex {
	return &RootIndex{doc: sitemap.NewIndex()}
}

// Append adds the entry for one batch
func (r *RootIndex) Append(e sitemap.IndexEntry) {
	r.doc.Add(e)
}

// Len returns the number of batches registered so far
func (r *RootIndex) Len() int {
	return r.doc.Len()
}

// Entries returns the registered entries in append order
func (r *RootIndex) Entries() []sitemap.IndexEntry {
	return r.doc.Entries()
}

// Finalize writes sitemap.xml at the output root. The root index is never compressed.
func (r *RootIndex) Finalize(em *emit.Emitter, outputDir string) (emit.EmitResult, error) {
	return em.Emit(r.doc, outputDir, rootBaseName, false, "")
}
