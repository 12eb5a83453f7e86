package native

// Ref is a raw native object handle. It carries no ownership and must only be
// dereferenced by a Library implementation.
type Ref uintptr

// Null is the invalid handle. Constructors return Null when the native
// allocation fails.
const Null Ref = 0

// TypeKind classifies a native type object.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeInteger
	TypeFloat
	TypePointer
	TypeFunction
	TypeStruct
	TypeArray
	TypeMetadata
	TypeLabel
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "void"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypePointer:
		return "pointer"
	case TypeFunction:
		return "function"
	case TypeStruct:
		return "struct"
	case TypeArray:
		return "array"
	case TypeMetadata:
		return "metadata"
	case TypeLabel:
		return "label"
	default:
		return "unknown"
	}
}

// ValueKind classifies a native value object.
type ValueKind uint8

const (
	ValueArgument ValueKind = iota
	ValueBasicBlock
	ValueFunction
	ValueConstantInt
	ValueConstantStruct
	ValueConstantString
	ValueInstruction
	ValueMetadataString
	ValueMetadataNode
)

func (k ValueKind) String() string {
	switch k {
	case ValueArgument:
		return "argument"
	case ValueBasicBlock:
		return "basic_block"
	case ValueFunction:
		return "function"
	case ValueConstantInt:
		return "constant_int"
	case ValueConstantStruct:
		return "constant_struct"
	case ValueConstantString:
		return "constant_string"
	case ValueInstruction:
		return "instruction"
	case ValueMetadataString:
		return "metadata_string"
	case ValueMetadataNode:
		return "metadata_node"
	default:
		return "unknown"
	}
}

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpRet
	OpBr
	OpCondBr
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
	OpICmp
	OpSelect
	OpCall
)

var opcodeNames = [...]string{
	OpInvalid: "invalid",
	OpRet:     "ret",
	OpBr:      "br",
	OpCondBr:  "br",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpUDiv:    "udiv",
	OpSDiv:    "sdiv",
	OpURem:    "urem",
	OpSRem:    "srem",
	OpShl:     "shl",
	OpLShr:    "lshr",
	OpAShr:    "ashr",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpICmp:    "icmp",
	OpSelect:  "select",
	OpCall:    "call",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "invalid"
}

// IsBinary reports whether o is a two-operand integer arithmetic opcode.
func (o Opcode) IsBinary() bool {
	return o >= OpAdd && o <= OpXor
}

// IsTerminator reports whether o ends a basic block.
func (o Opcode) IsTerminator() bool {
	return o == OpRet || o == OpBr || o == OpCondBr
}

// IntPredicate is an integer comparison predicate.
type IntPredicate uint8

const (
	IntEQ IntPredicate = iota
	IntNE
	IntUGT
	IntUGE
	IntULT
	IntULE
	IntSGT
	IntSGE
	IntSLT
	IntSLE
)

var predicateNames = [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle"}

func (p IntPredicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return "invalid"
}

// FileType selects the output of code generation.
type FileType uint8

const (
	ObjectFile FileType = iota
	AssemblyFile
)

// OptLevel is the code generation optimization level.
type OptLevel uint8

const (
	OptNone OptLevel = iota
	OptLess
	OptDefault
	OptAggressive
)
