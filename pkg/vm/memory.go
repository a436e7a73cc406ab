package vm

import (
	"encoding/binary"
	"fmt"
)

const (
	MaxDataSize      = 1 << 16 // 16-bit data addressing
	DefaultStackSize = 256     // stack slots
)

// Memory is the byte-addressable data segment. All accessors validate the
// full access width against the segment size.
type Memory struct {
	data []byte
}

// NewMemory allocates a zeroed data segment of len(initial)+scratch bytes and
// copies initial into its start.
func NewMemory(initial []byte, scratch int) (*Memory, error) {
	if scratch < 0 {
		return nil, fmt.Errorf("negative scratch size %d", scratch)
	}
	size := len(initial) + scratch
	if size > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, size)
	}
	m := &Memory{data: make([]byte, size)}
	copy(m.data, initial)
	return m, nil
}

// Size returns the segment size in bytes.
func (m *Memory) Size() int { return len(m.data) }

// Bytes returns the backing buffer. Callers must not resize it.
func (m *Memory) Bytes() []byte { return m.data }

func (m *Memory) check(addr uint32, width int) error {
	if uint64(addr)+uint64(width) > uint64(len(m.data)) {
		return fmt.Errorf("%w: 0x%04X+%d (size %d)", ErrAddressOutOfRange, addr, width, len(m.data))
	}
	return nil
}

// Slice returns data[addr:addr+n] after bounds checking.
func (m *Memory) Slice(addr uint32, n int) ([]byte, error) {
	if err := m.check(addr, n); err != nil {
		return nil, err
	}
	return m.data[addr : int(addr)+n], nil
}

// Load8 reads one byte.
func (m *Memory) Load8(addr uint32) (uint8, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// Load16 reads a little-endian 16-bit value.
func (m *Memory) Load16(addr uint32) (uint16, error) {
	if err := m.check(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

// Load32 reads a little-endian 32-bit value.
func (m *Memory) Load32(addr uint32) (uint32, error) {
	if err := m.check(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), nil
}

// Store8 writes one byte.
func (m *Memory) Store8(addr uint32, v uint8) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.data[addr] = v
	return nil
}

// Store16 writes a little-endian 16-bit value.
func (m *Memory) Store16(addr uint32, v uint16) error {
	if err := m.check(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
	return nil
}

// Store32 writes a little-endian 32-bit value.
func (m *Memory) Store32(addr uint32, v uint32) error {
	if err := m.check(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], v)
	return nil
}

// Copy moves n bytes from src to dst. Overlapping ranges are handled.
func (m *Memory) Copy(dst, src uint32, n int) error {
	if err := m.check(src, n); err != nil {
		return err
	}
	if err := m.check(dst, n); err != nil {
		return err
	}
	copy(m.data[dst:int(dst)+n], m.data[src:int(src)+n])
	return nil
}

// CString returns the bytes from addr up to, not including, the next NUL.
func (m *Memory) CString(addr uint32) ([]byte, error) {
	if err := m.check(addr, 1); err != nil {
		return nil, err
	}
	for i := int(addr); i < len(m.data); i++ {
		if m.data[i] == 0 {
			return m.data[addr:i], nil
		}
	}
	return nil, fmt.Errorf("%w: unterminated string at 0x%04X", ErrAddressOutOfRange, addr)
}

// Stack is the fixed-capacity operand stack. The stack pointer lives in the
// register file, so every operation takes and returns it explicitly.
//
// Slot 0 is the empty position: PUSH pre-increments, so the first pushed
// value lands in slot 1.
type Stack struct {
	slots []Word
}

// NewStack creates a stack with the given number of slots.
func NewStack(capacity int) *Stack {
	if capacity < 2 {
		capacity = 2
	}
	return &Stack{slots: make([]Word, capacity)}
}

// Cap returns the number of slots.
func (s *Stack) Cap() int { return len(s.slots) }

// Push stores w at sp+1 and returns the new stack pointer.
func (s *Stack) Push(sp uint32, w Word) (uint32, error) {
	if uint64(sp)+1 >= uint64(len(s.slots)) {
		return sp, fmt.Errorf("%w: sp=%d cap=%d", ErrStackOverflow, sp, len(s.slots))
	}
	sp++
	s.slots[sp] = w
	return sp, nil
}

// Pop returns the word at sp and the decremented stack pointer.
func (s *Stack) Pop(sp uint32) (Word, uint32, error) {
	if sp == 0 {
		return 0, sp, ErrStackUnderflow
	}
	if uint64(sp) >= uint64(len(s.slots)) {
		return 0, sp, fmt.Errorf("%w: sp=%d cap=%d", ErrStackOverflow, sp, len(s.slots))
	}
	return s.slots[sp], sp - 1, nil
}

// Peek returns the word at sp without moving it.
func (s *Stack) Peek(sp uint32) (Word, error) {
	if sp == 0 {
		return 0, ErrStackUnderflow
	}
	if uint64(sp) >= uint64(len(s.slots)) {
		return 0, fmt.Errorf("%w: sp=%d cap=%d", ErrStackOverflow, sp, len(s.slots))
	}
	return s.slots[sp], nil
}

// Slots returns the live portion of the stack, slots 1 through sp.
func (s *Stack) Slots(sp uint32) []Word {
	if sp == 0 {
		return nil
	}
	if uint64(sp) >= uint64(len(s.slots)) {
		sp = uint32(len(s.slots) - 1)
	}
	out := make([]Word, sp)
	copy(out, s.slots[1:sp+1])
	return out
}

// Reset clears every slot.
func (s *Stack) Reset() {
	for i := range s.slots {
		s.slots[i] = 0
	}
}
