// Package lift implements the bytecode lifter driver: a worklist over
// basic blocks, symbolically executing the operand stack and emitting
// TAC one instruction at a time, one case per bytecode opcode.
package lift

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/tiandiyixian/bytecode-analysis/blocks"
	"github.com/tiandiyixian/bytecode-analysis/stack"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// Lifter lifts method bodies into TAC, memoizing results in Cache: a
// MethodBody is created once per method on first lifting, and
// subsequent requests return the cached body.
type Lifter struct {
	Cache    *Cache
	Platform symbols.Platform
	Sources  symbols.SourceLocationProvider // optional
	Logger   log.Logger
}

// NewLifter returns a Lifter with the given cache capacity (0 for the
// default) and platform primitives. A nil logger is replaced with a
// no-op logger; the logger is threaded through constructors rather
// than reached for as a package-global.
func NewLifter(cacheCapacity int, platform symbols.Platform, logger log.Logger) *Lifter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Lifter{
		Cache:    NewCache(cacheCapacity),
		Platform: platform,
		Logger:   logger,
	}
}

// Result is the output of a single Lift call.
type Result struct {
	Body        *tac.MethodBody
	Diagnostics []Diagnostic
}

// Lift returns the TAC body for method, from cache if a prior Lift
// call already produced one. A cache hit never re-runs symbolic
// execution and so never reports diagnostics for that call;
// diagnostics are only available from the call that actually
// performed the lift.
func (l *Lifter) Lift(method symbols.MethodRef) (*Result, error) {
	if cached, ok := l.Cache.Get(method); ok {
		return &Result{Body: cached}, nil
	}

	raw, ok := method.Body()
	if !ok {
		return nil, errors.Errorf("lift: %s has no body", method.Name())
	}

	d := &driver{
		method:   method,
		raw:      raw,
		platform: l.Platform,
		sources:  l.Sources,
		logger:   l.Logger,
		excIdx:   blocks.Build(raw.OperationExceptionInfo),
		body:     tac.NewMethodBody(),
		st:       stack.New(raw.MaxStack),
	}
	if err := d.run(); err != nil {
		return nil, err
	}

	l.Cache.Put(method, d.body)
	return &Result{Body: d.body, Diagnostics: d.diagnostics}, nil
}

// driver holds all per-lift mutable state: the worklist, the basic
// block table, the operand stack, and the TAC body under construction.
type driver struct {
	method   symbols.MethodRef
	raw      symbols.MethodBody
	platform symbols.Platform
	sources  symbols.SourceLocationProvider
	logger   log.Logger
	excIdx   *blocks.ExceptionIndex

	body *tac.MethodBody
	st   *stack.OperandStack

	blocksByOffset map[uint32]*tac.BasicBlock
	opIndexByOff   map[uint32]int
	worklist       []uint32 // LIFO

	curOffset   uint32 // offset of the operation liftOp is currently lowering
	diagnostics []Diagnostic
}

// pop and push wrap the operand stack, attaching the method and the
// offset of the operation currently being lowered to any overflow or
// underflow so lift.Error carries enough context to locate the fault.
func (d *driver) pop() (tac.Temp, error) {
	t, e := d.st.Pop()
	if e != nil {
		return t, newError(StackUnderflow, d.method, d.curOffset, e)
	}
	return t, nil
}

func (d *driver) push() (tac.Temp, error) {
	t, e := d.st.Push()
	if e != nil {
		return t, newError(StackOverflow, d.method, d.curOffset, e)
	}
	return t, nil
}

func (d *driver) run() error {
	if len(d.raw.Operations) == 0 {
		return nil
	}

	// Register every pre-allocated Temp up front: later passes need
	// stable identities across all paths, live or not.
	for _, t := range d.st.AllTemps() {
		d.body.Declare(t)
	}
	if !d.method.IsStatic() {
		d.body.Declare(tac.ThisParam{})
	}
	for _, p := range d.method.Parameters() {
		d.body.Declare(tac.Param{Index: p.Index})
	}
	for _, lv := range d.raw.LocalVariables {
		d.body.Declare(tac.Local{Name: d.localName(lv)})
	}

	leaders := blocks.Recognize(d.raw.Operations)
	d.blocksByOffset = blocks.Split(d.raw.Operations, leaders)
	d.opIndexByOff = make(map[uint32]int, len(d.raw.Operations))
	for i, op := range d.raw.Operations {
		d.opIndexByOff[op.Offset] = i
	}

	d.addPending(0, 0)

	for len(d.worklist) > 0 {
		off := d.worklist[len(d.worklist)-1]
		d.worklist = d.worklist[:len(d.worklist)-1]

		blk := d.blocksByOffset[off]
		if blk.Status == tac.Processed {
			continue
		}
		if err := d.processBlock(blk); err != nil {
			return err
		}
	}
	return nil
}

// addPending implements the block worklist's enqueueing policy: the
// first time a block is targeted, queue it with the given entry stack
// size; thereafter, a mismatching stack size is a fatal fault, and
// processed blocks are never re-queued.
func (d *driver) addPending(offset uint32, stackSize uint16) error {
	blk, ok := d.blocksByOffset[offset]
	if !ok {
		return newError(StackSizeMismatch, d.method, offset, errors.Errorf("no block recognized at offset %d", offset))
	}
	switch blk.Status {
	case tac.None:
		blk.Status = tac.Pending
		blk.StackSizeAtEntry = stackSize
		d.worklist = append(d.worklist, offset)
	case tac.Pending, tac.Processed:
		if blk.StackSizeAtEntry != stackSize {
			return newError(StackSizeMismatch, d.method, offset,
				errors.Errorf("block at offset %d: recorded entry size %d, incoming %d", offset, blk.StackSizeAtEntry, stackSize))
		}
	}
	return nil
}

// processBlock symbolically executes one basic block to completion (or
// to its fall-through boundary). Upon reaching the first operation
// whose offset starts a different block, it yields control, enqueues
// that block at the current stack size, and returns.
func (d *driver) processBlock(blk *tac.BasicBlock) error {
	blk.Status = tac.Processed
	d.st.SetSize(blk.StackSizeAtEntry)

	idx, ok := d.opIndexByOff[blk.Offset]
	if !ok {
		return nil
	}
	for i := idx; i < len(d.raw.Operations); i++ {
		op := d.raw.Operations[i]
		if i != idx {
			if other, ok := d.blocksByOffset[op.Offset]; ok && other != blk {
				return d.addPending(op.Offset, uint16(d.st.Size()))
			}
		}

		d.emitExceptionMarkers(op.Offset)

		terminal, err := d.liftOp(blk, op)
		if err != nil {
			lerr, isLift := err.(*Error)
			if isLift && !lerr.Kind.Fatal() {
				d.diagnostics = append(d.diagnostics, Diagnostic{Offset: op.Offset, Kind: lerr.Kind, Message: lerr.Error()})
				level.Warn(d.logger).Log("msg", "unknown opcode, skipping", "method", d.method.Name(), "offset", op.Offset)
				continue
			}
			return err
		}
		if terminal {
			return nil
		}
	}
	return nil
}

// emitExceptionMarkers emits Try/Catch/Finally markers in order when
// offset starts a try, a handler, or a finally block.
func (d *driver) emitExceptionMarkers(offset uint32) {
	if _, _, _, ok := d.excIdx.TryStartingAt(offset); ok {
		d.body.Append(tac.Try{Base: tac.At(offset)})
	}
	if _, info, ok := d.excIdx.HandlerStartingAt(offset); ok {
		excVar, _ := d.st.Push()
		d.body.Declare(excVar)
		d.body.Append(tac.Catch{Base: tac.At(offset), ExcVar: excVar, ExcType: info.ExcType})
	}
	if _, _, ok := d.excIdx.FinallyStartingAt(offset); ok {
		d.body.Append(tac.Finally{Base: tac.At(offset)})
	}
}

func (d *driver) localName(lv symbols.LocalInfo) string {
	if d.sources != nil {
		if name, ok := d.sources.LocalName(lv.Index); ok {
			return name
		}
	}
	if lv.Name != "" {
		return lv.Name
	}
	return fmt.Sprintf("local%d", lv.Index)
}
