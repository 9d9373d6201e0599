package hash

import (
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion
//   - Integers: big-endian fixed-width (int32=4B, uint16=2B)
//   - Floats: IEEE 754 big-endian 4B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Sequences: uint32 count, then each element inline
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeNodes(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HIntLiteral:
		s.writeByte(TagIntLiteral)
		s.writeUint32(uint32(n.Value))

	case *HFloatLiteral:
		s.writeByte(TagFloatLiteral)
		s.writeUint32(math.Float32bits(n.Value))

	case *HStringLiteral:
		s.writeByte(TagStringLiteral)
		s.writeString(n.Value)

	case *HBoolLiteral:
		s.writeByte(TagBoolLiteral)
		s.writeBool(n.Value)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint16(n.ScopeDepth)
		s.writeUint16(n.SlotIndex)

	case *HBuiltinRef:
		s.writeByte(TagBuiltinRef)
		s.writeString(n.Name)

	case *HFreeRef:
		s.writeByte(TagFreeRef)
		s.writeString(n.Name)

	case *HCall:
		s.writeByte(TagCall)
		s.serializeNode(n.Callee)
		s.writeNodes(n.Arguments)

	case *HDeclare:
		s.writeByte(TagDeclare)
		s.writeBool(n.Mutable)
		s.serializeNode(n.Value)

	case *HAssign:
		s.writeByte(TagAssign)
		s.serializeNode(n.Target)
		s.serializeNode(n.Value)

	case *HFunction:
		s.writeByte(TagFunction)
		s.writeUint32(uint32(n.Arity))
		s.writeBool(n.Entry)
		s.writeNodes(n.Body)

	case *HConditional:
		s.writeByte(TagConditional)
		s.writeUint32(uint32(len(n.Arms)))
		for _, arm := range n.Arms {
			s.serializeNode(arm.Condition)
			s.writeNodes(arm.Body)
		}
		s.writeBool(n.HasFallback)
		s.writeNodes(n.Fallback)

	case *HReturn:
		s.writeByte(TagReturn)
		s.serializeNode(n.Value)

	case *HProgram:
		s.writeByte(TagProgram)
		s.writeNodes(n.Statements)
	}
}
