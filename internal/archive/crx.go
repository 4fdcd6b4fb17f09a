package archive

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidCRX is returned when a file does not carry a CRX header.
var ErrInvalidCRX = errors.New("not a CRX package")

var crxMagic = []byte("Cr24")

// ExtractCRX unpacks a Chrome extension package into dest. Both CRX2
// (public key + signature) and CRX3 (protobuf header) layouts are accepted.
func ExtractCRX(crxPath, dest string) error {
	f, err := os.Open(crxPath)
	if err != nil {
		return &Error{Archive: crxPath, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &Error{Archive: crxPath, Err: fmt.Errorf("stat: %w", err)}
	}

	offset, err := crxPayloadOffset(f)
	if err != nil {
		return &Error{Archive: crxPath, Err: err}
	}
	if offset > info.Size() {
		return &Error{Archive: crxPath, Err: fmt.Errorf("%w: header exceeds file size", ErrInvalidCRX)}
	}

	section := io.NewSectionReader(f, offset, info.Size()-offset)
	r, err := zip.NewReader(section, section.Size())
	if errors.Is(err, zip.ErrInsecurePath) {
		return &Error{Archive: crxPath, Err: fmt.Errorf("%w: %w", ErrUnsafePath, err)}
	}
	if err != nil {
		return &Error{Archive: crxPath, Err: fmt.Errorf("read payload: %w", err)}
	}

	return extractAll(r, crxPath, dest)
}

// crxPayloadOffset reads the CRX header and returns where the ZIP payload
// starts.
func crxPayloadOffset(r io.Reader) (int64, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCRX, err)
	}
	if string(head[:4]) != string(crxMagic) {
		return 0, ErrInvalidCRX
	}

	switch version := binary.LittleEndian.Uint32(head[4:]); version {
	case 2:
		var lens [8]byte
		if _, err := io.ReadFull(r, lens[:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCRX, err)
		}
		keyLen := int64(binary.LittleEndian.Uint32(lens[:4]))
		sigLen := int64(binary.LittleEndian.Uint32(lens[4:]))
		return 16 + keyLen + sigLen, nil
	case 3:
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCRX, err)
		}
		return 12 + int64(binary.LittleEndian.Uint32(lenBuf[:])), nil
	default:
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidCRX, version)
	}
}
