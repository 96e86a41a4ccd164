package readio

import (
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
)

// encodeTable maps ASCII bytes to encoded bases; 0 marks anything outside
// {A,C,G,T} case-insensitive. 'N' is legal FASTQ content but carries no
// encodable base, so it stays 0 and the read is skipped at encode time.
var encodeTable = func() [256]prg.Symbol {
	var t [256]prg.Symbol
	t['A'], t['a'] = prg.BaseA, prg.BaseA
	t['C'], t['c'] = prg.BaseC, prg.BaseC
	t['G'], t['g'] = prg.BaseG, prg.BaseG
	t['T'], t['t'] = prg.BaseT, prg.BaseT
	return t
}()

// validTable marks the bytes allowed in a FASTQ sequence line at all:
// ACGTN, case-insensitive. Anything else makes the record a BadRead.
var validTable = func() [256]bool {
	var t [256]bool
	for _, c := range []byte("ACGTNacgtn") {
		t[c] = true
	}
	return t
}()

// revCompTable maps each base byte to its Watson-Crick complement,
// everything else to 'N'.
var revCompTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	t['A'], t['a'] = 'T', 'T'
	t['C'], t['c'] = 'G', 'G'
	t['G'], t['g'] = 'C', 'C'
	t['T'], t['t'] = 'A', 'A'
	return t
}()

// Validate classifies a sequence line: nil for a mappable ACGT read, a
// BadRead error for an empty read or one holding bytes outside ACGTN.
// Reads containing N are legal input but unmappable; they also come back
// as BadRead so the caller can count them under skipped_reads.
func Validate(seq string) error {
	if len(seq) == 0 {
		return vgerrors.E(vgerrors.BadRead, "empty sequence", nil)
	}
	for i := 0; i < len(seq); i++ {
		if !validTable[seq[i]] {
			return vgerrors.E(vgerrors.BadRead, "sequence byte outside {A,C,G,T,N}", nil)
		}
		if encodeTable[seq[i]] == 0 {
			return vgerrors.E(vgerrors.BadRead, "unmappable N base", nil)
		}
	}
	return nil
}

// Encode converts a validated sequence to the PRG base alphabet.
func Encode(seq string) []prg.Symbol {
	out := make([]prg.Symbol, len(seq))
	for i := 0; i < len(seq); i++ {
		out[i] = encodeTable[seq[i]]
	}
	return out
}

// ReverseComplement returns the reverse complement of an ACGT sequence.
func ReverseComplement(seq string) string {
	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		out[len(seq)-1-i] = revCompTable[seq[i]]
	}
	return string(out)
}
