package prg

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/vgraph/vgerrors"
)

// Endianness selects the byte order used to persist a PRG's integer
// stream. Little-endian is the default; the persisted file always records
// which was used via a 2-byte magic prefix so a reader never has to
// guess.
type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
)

// magic prefix bytes: byte 0 identifies the file as a vgraph PRG stream,
// byte 1 records the endianness used for the symbols that follow.
const (
	magicByte0          = 0xB1
	magicLittleEndian   = 0x00
	magicBigEndianMark  = 0x01
)

// IsPacked reports whether raw starts with the packed-PRG magic prefix.
func IsPacked(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == magicByte0
}

func (e Endianness) byteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Write persists the PRG as a stream of fixed-width 64-bit integers,
// preceded by the 2-byte magic/endianness prefix.
func Write(ctx context.Context, path string, p *PRG, endian Endianness) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return vgerrors.E(vgerrors.InvalidPRG, "create "+path, err)
	}
	w := f.Writer(ctx)
	mark := byte(magicLittleEndian)
	if endian == BigEndian {
		mark = magicBigEndianMark
	}
	if _, err := w.Write([]byte{magicByte0, mark}); err != nil {
		_ = f.Close(ctx)
		return vgerrors.E(vgerrors.InvalidPRG, "write magic", err)
	}
	order := endian.byteOrder()
	buf := make([]byte, 8*len(p.Symbols))
	for i, s := range p.Symbols {
		order.PutUint64(buf[i*8:], uint64(s))
	}
	if _, err := w.Write(buf); err != nil {
		_ = f.Close(ctx)
		return vgerrors.E(vgerrors.InvalidPRG, "write symbols", err)
	}
	return f.Close(ctx)
}

// Read loads a PRG persisted by Write, auto-detecting endianness from the
// magic prefix. There is no further header; length is implicit from file
// size.
func Read(ctx context.Context, path string) (*PRG, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "open "+path, err)
	}
	defer func() { _ = f.Close(ctx) }()
	r := f.Reader(ctx)
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "read magic", err)
	}
	if header[0] != magicByte0 {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "not a vgraph PRG file", nil)
	}
	endian := LittleEndian
	if header[1] == magicBigEndianMark {
		endian = BigEndian
	}
	order := endian.byteOrder()
	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "read symbols", err)
	}
	if len(rest)%8 != 0 {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "truncated symbol stream", nil)
	}
	symbols := make([]Symbol, len(rest)/8)
	for i := range symbols {
		symbols[i] = Symbol(order.Uint64(rest[i*8:]))
	}
	// External PRG builders may close sites with a trailing separator; see
	// ParseNumbered.
	normalizeLegacyCloses(symbols)
	p := &PRG{Symbols: symbols}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
