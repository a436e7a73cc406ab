package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is a complete copy of machine state: registers, program, data
// segment and every stack slot.
type Snapshot struct {
	Registers [NumRegisters]uint32 `cbor:"1,keyasint"`
	Program   []byte               `cbor:"2,keyasint"`
	Data      []byte               `cbor:"3,keyasint"`
	Stack     []uint32             `cbor:"4,keyasint"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot copies the current machine state.
func (vm *VM) Snapshot() *Snapshot {
	s := &Snapshot{
		Program: append([]byte(nil), vm.program...),
		Data:    append([]byte(nil), vm.memory.Bytes()...),
		Stack:   make([]uint32, vm.stack.Cap()),
	}
	for i, w := range vm.registers.R {
		s.Registers[i] = uint32(w)
	}
	for i, w := range vm.stack.slots {
		s.Stack[i] = uint32(w)
	}
	return s
}

// Restore replaces the machine state with s. The VM is left stopped; the
// next Run resumes at the restored IP.
func (vm *VM) Restore(s *Snapshot) error {
	if len(s.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(s.Data))
	}
	mem, err := NewMemory(s.Data, 0)
	if err != nil {
		return err
	}
	stack := NewStack(len(s.Stack))
	for i, w := range s.Stack {
		stack.slots[i] = Word(w)
	}

	vm.program = append([]byte(nil), s.Program...)
	vm.memory = mem
	vm.stack = stack
	for i, w := range s.Registers {
		vm.registers.R[i] = Word(w)
	}
	vm.running = false
	return nil
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
