// Package pools provides object pooling for reducing GC pressure.
//
// This package contains various pool implementations for commonly
// allocated types in the storage engine:
//
//   - BytePool: Size-class based byte slice pooling, used for the
//     encoded key/value byte slices that flow into SSTables
//   - BufferBuilder: Efficient buffer construction with pooling, used
//     to assemble an SSTable record before a single write call
//   - SlabAllocator: single-shot, alloc-once/free-once region allocator
//     for fixed-capacity buffers such as a memtable's backing storage
package pools
