//go:build memsample

package metrics

// MemorySampling reports whether step rows carry a mem column.
const MemorySampling = true
