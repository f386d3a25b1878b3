package binfmt

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/opencontainers/go-digest"
)

// MemoryImage is the canonical, page-quantized memory representation of a
// guest program. Only pages touched by a loadable segment are materialized;
// untouched memory is implicitly zero. Two builds that produce byte-identical
// loadable segments produce identical memory images, regardless of host.
type MemoryImage struct {
	pageSize uint32
	entry    uint32
	pages    map[uint32][]byte // page index -> pageSize bytes
}

// NewMemoryImage builds a MemoryImage from a program at the given page
// granularity. pageSize must be a non-zero power of two.
func NewMemoryImage(prog *Program, pageSize uint32) (*MemoryImage, error) {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d is not a power of two", pageSize)
	}

	img := &MemoryImage{
		pageSize: pageSize,
		entry:    prog.Entry,
		pages:    make(map[uint32][]byte),
	}

	for _, seg := range prog.Segments {
		img.write(seg.VAddr, seg.Data)
		// Zero-initialized tail (.bss): materialize the pages so that the
		// image covers the segment's full memory span.
		if seg.MemSize > uint32(len(seg.Data)) {
			first := (seg.VAddr + uint32(len(seg.Data))) / pageSize
			last := (seg.VAddr + seg.MemSize - 1) / pageSize
			for idx := first; idx <= last; idx++ {
				img.page(idx)
			}
		}
	}

	return img, nil
}

// PageSize returns the page granularity of the image in bytes.
func (img *MemoryImage) PageSize() uint32 {
	return img.pageSize
}

// Entry returns the program entry point.
func (img *MemoryImage) Entry() uint32 {
	return img.entry
}

// NumPages returns the number of materialized pages.
func (img *MemoryImage) NumPages() int {
	return len(img.pages)
}

// ID reduces the image to its content identifier: a SHA-256 digest over the
// materialized pages in ascending page order, followed by the entry point
// and page size. The result is stable across hosts for identical inputs.
func (img *MemoryImage) ID() digest.Digest {
	indexes := make([]uint32, 0, len(img.pages))
	for idx := range img.pages {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	digester := digest.Canonical.Digester()
	h := digester.Hash()

	var word [4]byte
	for _, idx := range indexes {
		binary.LittleEndian.PutUint32(word[:], idx)
		h.Write(word[:])
		h.Write(img.pages[idx])
	}
	binary.LittleEndian.PutUint32(word[:], img.entry)
	h.Write(word[:])
	binary.LittleEndian.PutUint32(word[:], img.pageSize)
	h.Write(word[:])

	return digester.Digest()
}

// write copies data into the image starting at addr, materializing pages as
// needed.
func (img *MemoryImage) write(addr uint32, data []byte) {
	for len(data) > 0 {
		pageIdx := addr / img.pageSize
		offset := addr % img.pageSize
		page := img.page(pageIdx)

		n := copy(page[offset:], data)
		data = data[n:]
		addr += uint32(n)
	}
}

// page returns the page at idx, materializing a zero-filled page on first use.
func (img *MemoryImage) page(idx uint32) []byte {
	p, ok := img.pages[idx]
	if !ok {
		p = make([]byte, img.pageSize)
		img.pages[idx] = p
	}
	return p
}
