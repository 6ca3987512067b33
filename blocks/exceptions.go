package blocks

import "github.com/tiandiyixian/bytecode-analysis/symbols"

// ExceptionIndex maps each try region's begin offset to its handlers
// and finally block, built once from the raw exception table and then
// queried by offset during lifting.
type ExceptionIndex struct {
	byTryStart map[uint32]*tryRegion
	// catchOwner and finallyOwner map a handler/finally begin offset
	// back to the owning try region, so the lifter can answer "does
	// offset X start a handler/finally" in O(1).
	catchOwner   map[uint32]*tryRegion
	finallyOwner map[uint32]*tryRegion
}

type tryRegion struct {
	beginOffset uint32
	endOffset   uint32
	handlers    map[uint32]handlerInfo
	finally     *finallyInfo
}

type handlerInfo struct {
	beginOffset uint32
	endOffset   uint32
	excType     symbols.TypeRef
}

type finallyInfo struct {
	beginOffset uint32
	endOffset   uint32
}

// Build constructs the index from the raw exception table. Multiple
// ExceptionInfo entries sharing a TryStartOffset contribute additional
// handlers (Catch) or the Finally block to the same TryRegion.
func Build(table []symbols.ExceptionInfo) *ExceptionIndex {
	idx := &ExceptionIndex{
		byTryStart:   map[uint32]*tryRegion{},
		catchOwner:   map[uint32]*tryRegion{},
		finallyOwner: map[uint32]*tryRegion{},
	}
	for _, e := range table {
		r, ok := idx.byTryStart[e.TryStartOffset]
		if !ok {
			r = &tryRegion{
				beginOffset: e.TryStartOffset,
				endOffset:   e.TryEndOffset,
				handlers:    map[uint32]handlerInfo{},
			}
			idx.byTryStart[e.TryStartOffset] = r
		}
		switch e.HandlerKind {
		case symbols.Catch:
			r.handlers[e.HandlerStartOffset] = handlerInfo{
				beginOffset: e.HandlerStartOffset,
				endOffset:   e.HandlerEndOffset,
				excType:     e.ExceptionType,
			}
			idx.catchOwner[e.HandlerStartOffset] = r
		case symbols.Finally, symbols.Fault:
			r.finally = &finallyInfo{
				beginOffset: e.HandlerStartOffset,
				endOffset:   e.HandlerEndOffset,
			}
			idx.finallyOwner[e.HandlerStartOffset] = r
		case symbols.Filter:
			// Filters are exercised the same as catch for block
			// recognition purposes; treat the filter start as the
			// catch target (EndFilter is its own terminator kind).
			r.handlers[e.HandlerStartOffset] = handlerInfo{
				beginOffset: e.HandlerStartOffset,
				endOffset:   e.HandlerEndOffset,
				excType:     e.ExceptionType,
			}
			idx.catchOwner[e.HandlerStartOffset] = r
		}
	}
	return idx
}

// TryStartingAt returns the TryRegion beginning at off, if any.
func (idx *ExceptionIndex) TryStartingAt(off uint32) (beginOffset uint32, handlers []CatchInfo, hasFinally bool, ok bool) {
	r, ok := idx.byTryStart[off]
	if !ok {
		return 0, nil, false, false
	}
	return r.beginOffset, sortedHandlers(r), r.finally != nil, true
}

// CatchInfo mirrors tac.CatchInfo for the index's public API so
// callers outside this package don't need to import tac just to read
// a handler's metadata.
type CatchInfo struct {
	BeginOffset uint32
	EndOffset   uint32
	ExcType     symbols.TypeRef
}

func sortedHandlers(r *tryRegion) []CatchInfo {
	out := make([]CatchInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, CatchInfo{h.beginOffset, h.endOffset, h.excType})
	}
	// Deterministic order: by begin offset, matching declaration
	// order in virtually every bytecode emitter.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].BeginOffset < out[j-1].BeginOffset; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// HandlerStartingAt returns the owning try region's begin offset and
// the matched CatchInfo if off starts a catch (or filter) handler.
func (idx *ExceptionIndex) HandlerStartingAt(off uint32) (tryBegin uint32, info CatchInfo, ok bool) {
	r, ok := idx.catchOwner[off]
	if !ok {
		return 0, CatchInfo{}, false
	}
	h := r.handlers[off]
	return r.beginOffset, CatchInfo{h.beginOffset, h.endOffset, h.excType}, true
}

// FinallyStartingAt returns the owning try region's begin offset if
// off starts that region's finally block.
func (idx *ExceptionIndex) FinallyStartingAt(off uint32) (tryBegin uint32, endOffset uint32, ok bool) {
	r, ok := idx.finallyOwner[off]
	if !ok {
		return 0, 0, false
	}
	return r.beginOffset, r.finally.endOffset, true
}

// InTry reports whether offset off lies within the try body
// [beginOffset, endOffset) of any region, returning that region's
// begin offset.
func (idx *ExceptionIndex) InTry(off uint32) (beginOffset uint32, ok bool) {
	for start, r := range idx.byTryStart {
		if off >= r.beginOffset && off < r.endOffset {
			return start, true
		}
	}
	return 0, false
}

// RegionKind classifies which part of a TryRegion an offset falls
// within, for Leave/EndFinally's contextKind gate.
type RegionKind int

const (
	NoRegion RegionKind = iota
	InTryBody
	InHandlerBody
	InFinallyBody
)

// Enclosing finds the innermost try region containing off and reports
// which part of it off lies in, along with that region's handlers and
// finally metadata (needed to lower Leave and EndFinally).
func (idx *ExceptionIndex) Enclosing(off uint32) (kind RegionKind, tryBegin uint32, handlers []CatchInfo, finallyBegin, finallyEnd uint32, hasFinally bool) {
	var best *tryRegion
	var bestKind RegionKind
	for _, r := range idx.byTryStart {
		switch {
		case off >= r.beginOffset && off < r.endOffset:
			if best == nil || r.beginOffset > best.beginOffset {
				best, bestKind = r, InTryBody
			}
		case r.finally != nil && off >= r.finally.beginOffset && off < r.finally.endOffset:
			if best == nil || r.beginOffset > best.beginOffset {
				best, bestKind = r, InFinallyBody
			}
		default:
			for _, h := range r.handlers {
				if off >= h.beginOffset && off < h.endOffset {
					if best == nil || r.beginOffset > best.beginOffset {
						best, bestKind = r, InHandlerBody
					}
				}
			}
		}
	}
	if best == nil {
		return NoRegion, 0, nil, 0, 0, false
	}
	if best.finally != nil {
		return bestKind, best.beginOffset, sortedHandlers(best), best.finally.beginOffset, best.finally.endOffset, true
	}
	return bestKind, best.beginOffset, sortedHandlers(best), 0, 0, false
}
