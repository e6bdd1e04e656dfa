package api

import "errors"

// ErrorOutofMemory arena exhausted and arena extension is disabled.
var ErrorOutofMemory = errors.New("malloc.outofmemory")

// ErrorConfiguration invalid batch count for a requested size class,
// or otherwise invalid settings.
var ErrorConfiguration = errors.New("malloc.configuration")

// ErrorCorruption chunk header does not carry a valid signature, or
// free-list invariants are broken.
var ErrorCorruption = errors.New("malloc.corruption")

// ErrorPoolExhausted all local managers for a core are checked out.
var ErrorPoolExhausted = errors.New("malloc.poolexhausted")

// Alignment of every pointer returned by the allocator.
const Alignment = int64(16)

// MinChunksize smallest body size handed out by the allocator.
const MinChunksize = int64(8)
