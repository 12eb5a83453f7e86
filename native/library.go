package native

// Library is the C-style ABI of the native compiler library. Every method
// operates on raw handles and performs no lifetime checking of its own:
// passing a freed handle is undefined behavior in a real native library.
// Callers outside this module should go through the ir package instead.
//
// Constructors return Null when the native allocation fails. Functions that
// report errors return a message handle that must be released with
// DisposeMessage (see TakeMessage).
type Library interface {
	Version() Version

	// Contexts own types, constants, metadata, attributes and modules.
	ContextCreate() Ref
	ContextDispose(ctx Ref)
	// GetMDKindIDInContext returns ids starting at 1, or 0 for a dead ctx.
	GetMDKindIDInContext(ctx Ref, name string) uint32

	// Types are owned by their context and are never freed individually.
	VoidTypeInContext(ctx Ref) Ref
	IntTypeInContext(ctx Ref, bits uint32) Ref
	FloatTypeInContext(ctx Ref, bits uint32) Ref
	PointerTypeInContext(ctx Ref, addrSpace uint32) Ref
	MetadataTypeInContext(ctx Ref) Ref
	FunctionType(ret Ref, params []Ref, varArg bool) Ref
	StructTypeInContext(ctx Ref, fields []Ref, packed bool) Ref
	StructCreateNamed(ctx Ref, name string) Ref
	StructSetBody(st Ref, fields []Ref, packed bool)
	ArrayType(elem Ref, count uint64) Ref
	GetTypeKind(ty Ref) TypeKind
	GetTypeContext(ty Ref) Ref
	GetIntTypeWidth(ty Ref) uint32
	GetPrimitiveSizeInBits(ty Ref) uint32
	GetPointerAddressSpace(ty Ref) uint32
	GetReturnType(fnTy Ref) Ref
	GetParamTypes(fnTy Ref) []Ref
	IsFunctionVarArg(fnTy Ref) bool
	GetStructName(st Ref) string
	GetStructElementTypes(st Ref) []Ref
	IsPackedStruct(st Ref) bool
	IsOpaqueStruct(st Ref) bool
	GetElementType(arr Ref) Ref
	GetArrayLength(arr Ref) uint64

	// Values.
	TypeOf(v Ref) Ref
	GetValueKind(v Ref) ValueKind
	GetValueName(v Ref) string
	SetValueName(v Ref, name string)
	GetNumOperands(v Ref) int
	GetOperand(v Ref, index int) Ref
	IsConstant(v Ref) bool
	ReplaceAllUsesWith(old, replacement Ref)

	// Constants are owned by their context.
	ConstInt(ty Ref, value uint64, signExtend bool) Ref
	ConstIntGetZExtValue(v Ref) uint64
	ConstIntGetSExtValue(v Ref) int64
	ConstStructInContext(ctx Ref, values []Ref, packed bool) Ref
	ConstStringInContext(ctx Ref, data []byte, dontNullTerminate bool) Ref
	GetAsString(v Ref) []byte

	// Metadata is owned by its context.
	MDStringInContext(ctx Ref, s string) Ref
	MDNodeInContext(ctx Ref, values []Ref) Ref
	GetMDString(v Ref) string

	// Attributes are owned by their context.
	CreateEnumAttribute(ctx Ref, kind uint32, value uint64) Ref
	CreateStringAttribute(ctx Ref, key, value string) Ref
	IsEnumAttribute(attr Ref) bool
	GetEnumAttributeKind(attr Ref) uint32
	GetEnumAttributeValue(attr Ref) uint64
	GetStringAttributeKind(attr Ref) string
	GetStringAttributeValue(attr Ref) string

	// Modules are freed by DisposeModule or by disposing their context.
	ModuleCreateWithNameInContext(name string, ctx Ref) Ref
	DisposeModule(m Ref)
	CloneModule(m Ref) Ref
	GetModuleContext(m Ref) Ref
	GetModuleIdentifier(m Ref) string
	SetModuleIdentifier(m Ref, id string)
	GetTarget(m Ref) string
	SetTarget(m Ref, triple string)
	AddNamedMetadataOperand(m Ref, name string, node Ref)
	GetNamedMetadataOperands(m Ref, name string) []Ref
	VerifyModule(m Ref) Ref
	PrintModuleToString(m Ref) Ref
	WriteBitcodeToMemoryBuffer(m Ref) Ref
	// ParseBitcodeInContext takes ownership of buf regardless of the outcome.
	ParseBitcodeInContext(ctx Ref, buf Ref) (mod Ref, msg Ref)

	// Functions are owned by their module.
	AddFunction(m Ref, name string, fnTy Ref) Ref
	GetNamedFunction(m Ref, name string) Ref
	GetFirstFunction(m Ref) Ref
	GetNextFunction(fn Ref) Ref
	GetGlobalParent(fn Ref) Ref
	GlobalGetValueType(fn Ref) Ref
	DeleteFunction(fn Ref)
	CountParams(fn Ref) int
	GetParam(fn Ref, index int) Ref
	GetParamParent(arg Ref) Ref
	AddFunctionAttribute(fn Ref, attr Ref)
	GetFunctionAttributes(fn Ref) []Ref

	// Basic blocks are owned by their function.
	AppendBasicBlockInContext(ctx Ref, fn Ref, name string) Ref
	InsertBasicBlockInContext(ctx Ref, before Ref, name string) Ref
	GetBasicBlockParent(bb Ref) Ref
	GetBasicBlockName(bb Ref) string
	CountBasicBlocks(fn Ref) int
	GetFirstBasicBlock(fn Ref) Ref
	GetNextBasicBlock(bb Ref) Ref
	GetPreviousBasicBlock(bb Ref) Ref
	GetFirstInstruction(bb Ref) Ref
	GetLastInstruction(bb Ref) Ref
	GetBasicBlockTerminator(bb Ref) Ref

	// Instructions are owned by their basic block while attached. Detached
	// instructions are owned by the caller and freed with DeleteInstruction.
	GetInstructionOpcode(inst Ref) Opcode
	GetInstructionParent(inst Ref) Ref
	GetNextInstruction(inst Ref) Ref
	GetPreviousInstruction(inst Ref) Ref
	GetICmpPredicate(inst Ref) IntPredicate
	InstructionClone(inst Ref) Ref
	InstructionRemoveFromParent(inst Ref)
	InstructionEraseFromParent(inst Ref)
	DeleteInstruction(inst Ref)

	// Builders are freed only by DisposeBuilder.
	CreateBuilderInContext(ctx Ref) Ref
	DisposeBuilder(b Ref)
	PositionBuilderAtEnd(b Ref, bb Ref)
	PositionBuilderBefore(b Ref, inst Ref)
	ClearInsertionPosition(b Ref)
	GetInsertBlock(b Ref) Ref
	InsertIntoBuilderWithName(b Ref, inst Ref, name string)
	BuildBinOp(b Ref, op Opcode, lhs, rhs Ref, name string) Ref
	BuildICmp(b Ref, pred IntPredicate, lhs, rhs Ref, name string) Ref
	BuildSelect(b Ref, cond, then, els Ref, name string) Ref
	BuildCall(b Ref, fnTy Ref, fn Ref, args []Ref, name string) Ref
	BuildRet(b Ref, v Ref) Ref
	BuildRetVoid(b Ref) Ref
	BuildBr(b Ref, dest Ref) Ref
	BuildCondBr(b Ref, cond, then, els Ref) Ref

	// Memory buffers are independent of any context.
	CreateMemoryBufferWithMemoryRangeCopy(data []byte, name string) Ref
	// GetBufferStart aliases native storage; it is valid until the buffer is
	// disposed or consumed.
	GetBufferStart(buf Ref) []byte
	GetBufferSize(buf Ref) int
	DisposeMemoryBuffer(buf Ref)

	// Messages are independent heap strings.
	GetMessage(msg Ref) string
	DisposeMessage(msg Ref)

	// Targets are static and never freed. Target machines are freed only by
	// DisposeTargetMachine.
	GetDefaultTargetTriple() string
	GetFirstTarget() Ref
	GetNextTarget(t Ref) Ref
	GetTargetFromTriple(triple string) (target Ref, msg Ref)
	GetTargetName(t Ref) string
	GetTargetDescription(t Ref) string
	CreateTargetMachine(t Ref, triple, cpu, features string, level OptLevel) Ref
	DisposeTargetMachine(tm Ref)
	GetTargetMachineTriple(tm Ref) string
	GetTargetMachinePointerSize(tm Ref) uint32
	TargetMachineEmitToMemoryBuffer(tm Ref, m Ref, ft FileType) (buf Ref, msg Ref)
}

// TakeMessage copies a native message and disposes it. A Null message yields
// the empty string.
func TakeMessage(lib Library, msg Ref) string {
	if msg == Null {
		return ""
	}
	s := lib.GetMessage(msg)
	lib.DisposeMessage(msg)
	return s
}
