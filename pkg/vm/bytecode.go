package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Bytecode image format (little-endian):
// - Magic: "MCBC" (4 bytes)
// - Version: uint16
// - Scratch: uint16 (zero bytes appended to the data segment)
// - StackSize: uint16 (0 selects DefaultStackSize)
// - ProgramLen: uint32, then the program bytes
// - DataLen: uint32, then the initial data segment bytes

const (
	BytecodeMagic   = "MCBC"
	BytecodeVersion = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid bytecode magic")
	ErrInvalidVersion = errors.New("unsupported bytecode version")
)

// Image is a loadable program: code, initial data, and the machine sizing it
// was built for.
type Image struct {
	Program   []byte
	Data      []byte
	Scratch   uint16
	StackSize uint16
}

// SerializeImage serializes an Image to bytecode format.
func SerializeImage(img *Image) ([]byte, error) {
	if len(img.Data)+int(img.Scratch) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(img.Data)+int(img.Scratch))
	}

	buf := new(bytes.Buffer)
	buf.WriteString(BytecodeMagic)

	header := []uint16{BytecodeVersion, img.Scratch, img.StackSize}
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(img.Program))); err != nil {
		return nil, fmt.Errorf("writing program length: %w", err)
	}
	buf.Write(img.Program)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(img.Data))); err != nil {
		return nil, fmt.Errorf("writing data length: %w", err)
	}
	buf.Write(img.Data)

	return buf.Bytes(), nil
}

// DeserializeImage deserializes bytecode to an Image.
func DeserializeImage(data []byte) (*Image, error) {
	buf := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(buf, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != BytecodeMagic {
		return nil, ErrInvalidMagic
	}

	var header [3]uint16
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header[0] != BytecodeVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, header[0])
	}
	img := &Image{Scratch: header[1], StackSize: header[2]}

	var err error
	if img.Program, err = readBlock(buf, "program"); err != nil {
		return nil, err
	}
	if img.Data, err = readBlock(buf, "data"); err != nil {
		return nil, err
	}
	if len(img.Data)+int(img.Scratch) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(img.Data)+int(img.Scratch))
	}
	return img, nil
}

func readBlock(r *bytes.Reader, what string) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("reading %s length: %w", what, err)
	}
	if int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("reading %s: %w", what, io.ErrUnexpectedEOF)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	return b, nil
}

// Disassemble renders an image as an annotated listing. Undefined or
// truncated bytes are shown as raw .byte lines and decoding resumes after them.
func Disassemble(img *Image) string {
	var buf bytes.Buffer

	buf.WriteString("; Disassembled from MCVM bytecode\n")
	fmt.Fprintf(&buf, "; %d program bytes, %d data bytes, %d scratch, stack %d\n\n",
		len(img.Program), len(img.Data), img.Scratch, img.StackSize)

	for off := uint32(0); int(off) < len(img.Program); {
		inst, err := Decode(img.Program, off)
		if err != nil {
			fmt.Fprintf(&buf, "%04X: .byte 0x%02X ; %v\n", off, img.Program[off], err)
			off++
			continue
		}
		fmt.Fprintf(&buf, "%04X: %s\n", off, inst)
		off = inst.Next()
	}

	if len(img.Data) > 0 {
		buf.WriteString("\n; data\n")
		for i := 0; i < len(img.Data); i += 16 {
			end := min(i+16, len(img.Data))
			fmt.Fprintf(&buf, "; %04X: % X\n", i, img.Data[i:end])
		}
	}
	return buf.String()
}
