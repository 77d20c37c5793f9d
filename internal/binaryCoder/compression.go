package binaryCoder

import (
	"bytes"
	"fmt"

	"github.com/ulikunitz/xz/lzma"
)

const (
	envelopeRaw  byte = 0
	envelopeLzma byte = 1
)

// Seal prefixes data with its envelope byte, compressing it with lzma when it is at
// least threshold bytes long and compression actually saves space. A threshold <= 0
// disables compression.
func Seal(data []byte, threshold int) ([]byte, error) {
	if threshold > 0 && len(data) >= threshold {
		compressed, err := compressWithLzma(data)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(data) {
			return append([]byte{envelopeLzma}, compressed...), nil
		}
	}
	return append([]byte{envelopeRaw}, data...), nil
}

// Open reverses Seal.
func Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}
	switch sealed[0] {
	case envelopeRaw:
		return sealed[1:], nil
	case envelopeLzma:
		return decompressWithLzma(sealed[1:])
	}
	return nil, fmt.Errorf("unknown envelope %d", sealed[0])
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
