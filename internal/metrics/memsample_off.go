//go:build !memsample

package metrics

// MemorySampling reports whether step rows carry a mem column.
// Build with -tags memsample to enable it.
const MemorySampling = false
