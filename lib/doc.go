// Package lib provide small helpers used by the allocator engine and
// its tools, counters for accounting and raw memory operations on
// off-heap blocks. Package shall not import packages other than
// golang's standard packages.
package lib
