// Package symbols declares the abstract collaborators this module
// never implements: the metadata/bytecode decoder and the symbol
// model (types, methods, fields, parameters, locals). The lifter and
// the points-to engine consume programs only through these
// interfaces, so any decoder/symbol-table implementation can be
// plugged in without touching analysis code.
package symbols

// TypeKind discriminates the handful of type shapes the lifter and
// points-to engine need to distinguish; the rest of a type's
// structure is opaque to this module.
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindPrimitive
	KindReference
)

// TypeRef is the abstract handle for a type in the host symbol model.
// Implementations are expected to be comparable (usable as map keys)
// since NodeIds and field keys are built from them.
type TypeRef interface {
	Kind() TypeKind
	String() string
}

// IBasicType is the subset of TypeRef that supports virtual-method
// resolution; only reference types with a method table implement it.
type IBasicType interface {
	TypeRef
	// FindMethodImplementation resolves staticMethod against the
	// receiver's concrete method table, returning the method that
	// actually executes when this type is invoked through
	// staticMethod's signature.
	FindMethodImplementation(staticMethod MethodRef) (MethodRef, bool)
}

// MethodRef is the abstract handle for a method. Implementations must
// be comparable; MethodRef values are used as call-graph nodes and as
// ProgramAnalysisInfo keys.
type MethodRef interface {
	Name() string
	IsStatic() bool
	ContainingType() TypeRef
	Parameters() []ParamInfo
	ReturnType() TypeRef
	// Body returns the method's raw operations and exception table,
	// or ok=false for methods with no body available (abstract,
	// external, or unresolved).
	Body() (MethodBody, bool)
}

// ParamInfo describes one formal parameter.
type ParamInfo struct {
	Index int
	Name  string
	Type  TypeRef
}

// FieldRef names a field by its stable textual member signature
// (containing type omitted, special names preserved). Two FieldRefs
// denoting the same member must compare equal even across reflective
// lookups.
type FieldRef struct {
	Name string
	Type TypeRef
}

// MethodBody is the raw, stack-bytecode input to the lifter.
type MethodBody struct {
	MaxStack               uint16
	Operations             []RawOp
	LocalVariables         []LocalInfo
	OperationExceptionInfo []ExceptionInfo
	Size                   uint32
	Kind                   BodyKind
}

// LocalInfo describes one local variable slot.
type LocalInfo struct {
	Index int
	Name  string
	Type  TypeRef
}

// BodyKind distinguishes bodies already lowered to three-address form
// (no operand stack to reconstruct) from raw stack bytecode.
type BodyKind int

const (
	Bytecode BodyKind = iota
	ThreeAddress
)

// HandlerKind discriminates exception-handler regions.
type HandlerKind int

const (
	Catch HandlerKind = iota
	Finally
	Filter
	Fault
)

// ExceptionInfo is one entry of the raw exception table.
type ExceptionInfo struct {
	TryStartOffset     uint32
	TryEndOffset       uint32
	HandlerKind        HandlerKind
	HandlerStartOffset uint32
	HandlerEndOffset   uint32
	ExceptionType      TypeRef // nil for Finally/Fault
}

// SourceLocationProvider optionally maps local definitions to their
// source-level names. If absent, raw metadata names are used.
type SourceLocationProvider interface {
	LocalName(index int) (string, bool)
}

// Platform primitive type references used by conversion lowering. A
// host symbol model supplies concrete TypeRef values; this module only
// needs to be able to ask for "the int32 type" etc.
type Platform struct {
	IntPtr   TypeRef
	Int8     TypeRef
	Int16    TypeRef
	Int32    TypeRef
	Int64    TypeRef
	UIntPtr  TypeRef
	UInt8    TypeRef
	UInt16   TypeRef
	UInt32   TypeRef
	UInt64   TypeRef
	Float32  TypeRef
	Float64  TypeRef
}
