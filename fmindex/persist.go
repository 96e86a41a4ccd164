package fmindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/highwayhash"
)

// highwayKey is a fixed, arbitrary 256-bit key. The checksum only needs to
// detect accidental corruption of the persisted file, not resist a
// deliberate adversary, so a compile-time key is sufficient.
var highwayKey = [32]byte{
	0x1f, 0x9e, 0x4a, 0xc3, 0x7b, 0x02, 0x55, 0xd1,
	0x8c, 0x3e, 0x61, 0xaa, 0x4d, 0x90, 0x27, 0xf6,
	0x5a, 0x11, 0x8b, 0x3c, 0x7d, 0x24, 0xe9, 0x06,
	0x48, 0xb5, 0xfa, 0x12, 0x6e, 0x33, 0x9c, 0x80,
}

// computeChecksum hashes the BWT and the two rank support structures (base
// prefix ranks and the marker bitmap) with HighwayHash, so a bit flip in
// any of them surfaces as CorruptedIndex on load.
func (idx *FMIndex) computeChecksum() [32]byte {
	h, err := highwayhash.New(highwayKey[:])
	if err != nil {
		// highwayhash.New only fails on a wrong-length key, which is a
		// programmer error, not a runtime condition.
		panic(err)
	}
	for _, s := range idx.bwt {
		_ = binary.Write(h, binary.LittleEndian, int64(s))
	}
	for b := 0; b < 4; b++ {
		for _, v := range idx.baseRankPrefix[b] {
			_ = binary.Write(h, binary.LittleEndian, v)
		}
	}
	for _, w := range idx.markerBitmap {
		_ = binary.Write(h, binary.LittleEndian, w)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// persistedIndex is the gob-serialisable snapshot of an FMIndex. The
// index has no externally-visible wire format, so gob serves as internal
// plumbing, with zstd compression and a HighwayHash integrity check
// layered on top.
type persistedIndex struct {
	N               int
	Text            []prg.Symbol
	SA              []int32
	BWT             []prg.Symbol
	CArray          map[prg.Symbol]int
	BaseRankPrefix  [4][]int32
	MarkerPositions map[prg.Symbol][]int32
	MarkerBitmap    []uint64
	Checksum        [32]byte
}

// Save persists the FM-index to path as zstd-compressed gob, with a
// HighwayHash checksum over the BWT and rank supports embedded for
// corruption detection on load.
func Save(ctx context.Context, path string, idx *FMIndex) error {
	var buf bytes.Buffer
	snap := persistedIndex{
		N:               idx.n,
		Text:            idx.text,
		SA:              idx.sa,
		BWT:             idx.bwt,
		CArray:          idx.cArray,
		BaseRankPrefix:  idx.baseRankPrefix,
		MarkerPositions: idx.markerPositions,
		MarkerBitmap:    idx.markerBitmap,
		Checksum:        idx.checksum,
	}
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return vgerrors.E(vgerrors.CorruptedIndex, "encode FM-index", err)
	}

	f, err := file.Create(ctx, path)
	if err != nil {
		return vgerrors.E(vgerrors.CorruptedIndex, "create "+path, err)
	}
	zw, err := zstd.NewWriter(f.Writer(ctx))
	if err != nil {
		_ = f.Close(ctx)
		return vgerrors.E(vgerrors.CorruptedIndex, "zstd writer", err)
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		_ = zw.Close()
		_ = f.Close(ctx)
		return vgerrors.E(vgerrors.CorruptedIndex, "write compressed FM-index", err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close(ctx)
		return vgerrors.E(vgerrors.CorruptedIndex, "close zstd writer", err)
	}
	return f.Close(ctx)
}

// Load reads an FM-index persisted by Save and verifies its HighwayHash
// checksum, returning a CorruptedIndex error on mismatch.
func Load(ctx context.Context, path string) (*FMIndex, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, vgerrors.E(vgerrors.CorruptedIndex, "open "+path, err)
	}
	defer func() { _ = f.Close(ctx) }()

	zr, err := zstd.NewReader(f.Reader(ctx))
	if err != nil {
		return nil, vgerrors.E(vgerrors.CorruptedIndex, "zstd reader", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, vgerrors.E(vgerrors.CorruptedIndex, "read compressed FM-index", err)
	}

	var snap persistedIndex
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, vgerrors.E(vgerrors.CorruptedIndex, "decode FM-index", err)
	}

	idx := &FMIndex{
		n:               snap.N,
		text:            snap.Text,
		sa:              snap.SA,
		bwt:             snap.BWT,
		cArray:          snap.CArray,
		baseRankPrefix:  snap.BaseRankPrefix,
		markerPositions: snap.MarkerPositions,
		markerBitmap:    snap.MarkerBitmap,
	}
	got := idx.computeChecksum()
	if got != snap.Checksum {
		return nil, vgerrors.E(vgerrors.CorruptedIndex, "BWT/rank checksum mismatch", nil)
	}
	idx.checksum = got
	return idx, nil
}
