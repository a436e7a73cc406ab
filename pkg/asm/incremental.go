package asm

import (
	"fmt"

	"github.com/akhildatla/mcvm/pkg/vm"
)

// Incremental assembles a sequence of sources that share one data segment.
// Data names defined by earlier calls stay visible and keep their addresses;
// labels are local to each call.
type Incremental struct {
	// MaxData limits the accumulated data segment. Zero allows no data;
	// NoDataLimit removes the limit.
	MaxData int

	data  map[string]uint32
	bytes []byte
}

// NoDataLimit disables the MaxData check.
const NoDataLimit = -1

// NewIncremental returns an assembler with an empty data segment and no
// data limit.
func NewIncremental() *Incremental {
	return &Incremental{MaxData: NoDataLimit, data: make(map[string]uint32)}
}

// Assemble assembles source. The returned image carries the whole data
// segment accumulated so far. A failed call leaves the state unchanged.
func (inc *Incremental) Assemble(source string) (*vm.Image, error) {
	file, err := Parse("", source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	a := &assembler{
		labels: make(map[string]uint32),
		data:   make(map[string]uint32, len(inc.data)),
	}
	for k, v := range inc.data {
		a.data[k] = v
	}
	a.img.Data = append([]byte(nil), inc.bytes...)

	img, err := a.assemble(file)
	if err != nil {
		return nil, err
	}
	if inc.MaxData != NoDataLimit && len(img.Data) > inc.MaxData {
		return nil, fmt.Errorf("%w: data directives need %d bytes, limit is %d", ErrTooLarge, len(img.Data), inc.MaxData)
	}
	inc.data = a.data
	inc.bytes = append([]byte(nil), img.Data...)
	return img, nil
}

// DataSize returns the number of bytes defined by data directives so far.
func (inc *Incremental) DataSize() int { return len(inc.bytes) }

// Symbols returns a copy of the data name table.
func (inc *Incremental) Symbols() map[string]uint32 {
	out := make(map[string]uint32, len(inc.data))
	for k, v := range inc.data {
		out[k] = v
	}
	return out
}
