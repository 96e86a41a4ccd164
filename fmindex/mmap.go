package fmindex

import (
	"unsafe"

	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// hugePageSize is the Linux transparent-hugepage size; mmap'd regions are
// rounded up to it and madvised so the kernel backs them with hugepages.
const hugePageSize = 2 << 20

// mmapInt32Slice anonymously maps enough pages to hold n int32s and advises
// the kernel to back them with transparent hugepages. Used for the suffix
// array of large PRGs, where a plain Go slice would otherwise suffer more
// TLB misses during the prefix-doubling sort.
//
// Falls back to a regular Go slice if the mmap call fails; a failed
// MADV_HUGEPAGE advice is only logged and the mapping is still used.
// Construction correctness never depends on the mapping succeeding.
func mmapInt32Slice(n int) []int32 {
	if n <= 0 {
		return nil
	}
	nBytes := n * 4
	data, err := unix.Mmap(-1, 0, nBytes+hugePageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Printf("fmindex: mmap fallback to heap allocation: %v", err)
		return make([]int32, n)
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		log.Printf("fmindex: madvise(MADV_HUGEPAGE) failed, continuing anyway: %v", err)
	}
	aligned := ((uintptr(unsafe.Pointer(&data[0])) - 1) / hugePageSize + 1) * hugePageSize
	base := unsafe.Pointer(aligned)
	return unsafe.Slice((*int32)(base), n)
}
