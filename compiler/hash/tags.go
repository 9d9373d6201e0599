package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the fingerprint serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones
// invalidates every cached image.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing fingerprints.
const HashVersion byte = 1

// AST node type tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagIntLiteral    byte = 0x01
	TagFloatLiteral  byte = 0x02
	TagStringLiteral byte = 0x03
	TagBoolLiteral   byte = 0x04

	// References
	TagLocalRef   byte = 0x08
	TagBuiltinRef byte = 0x09
	TagFreeRef    byte = 0x0A

	// Expressions
	TagCall byte = 0x10

	// Statements / structure
	TagDeclare     byte = 0x20
	TagAssign      byte = 0x21
	TagFunction    byte = 0x22
	TagConditional byte = 0x23
	TagReturn      byte = 0x24
	TagProgram     byte = 0x25

	// Reserved 0xFE-0xFF
)

// allTags lists every assigned tag for uniqueness testing.
var allTags = []byte{
	TagIntLiteral, TagFloatLiteral, TagStringLiteral, TagBoolLiteral,
	TagLocalRef, TagBuiltinRef, TagFreeRef,
	TagCall,
	TagDeclare, TagAssign, TagFunction, TagConditional, TagReturn, TagProgram,
}
