package vm

import (
	"github.com/tliron/commonlog"
)

// Tracer receives a callback around every executed instruction.
type Tracer interface {
	Before(v *VM, inst Instruction)
	After(v *VM, inst Instruction, err error)
}

// LogTracer writes each instruction to a commonlog logger at debug level.
type LogTracer struct {
	Log commonlog.Logger
}

// NewLogTracer returns a tracer logging under the "mcvm.trace" name.
func NewLogTracer() *LogTracer {
	return &LogTracer{Log: commonlog.GetLogger("mcvm.trace")}
}

func (t *LogTracer) Before(v *VM, inst Instruction) {
	t.Log.Debugf("%04X  %-24s sp=%d ra=0x%04X", inst.Offset, inst, v.SP(), uint32(v.Register(RegRA)))
}

func (t *LogTracer) After(v *VM, inst Instruction, err error) {
	if err != nil {
		t.Log.Debugf("%04X  %s failed: %v", inst.Offset, inst.Op, err)
	}
}

// FuncTracer adapts plain functions to Tracer. Nil fields are skipped.
type FuncTracer struct {
	OnBefore func(v *VM, inst Instruction)
	OnAfter  func(v *VM, inst Instruction, err error)
}

func (t FuncTracer) Before(v *VM, inst Instruction) {
	if t.OnBefore != nil {
		t.OnBefore(v, inst)
	}
}

func (t FuncTracer) After(v *VM, inst Instruction, err error) {
	if t.OnAfter != nil {
		t.OnAfter(v, inst, err)
	}
}
