package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/msq-lang/msq/compiler"
)

// HashProgram computes the SHA-256 fingerprint of a parsed program.
//
// The hash is computed over a deterministic serialization of the program's
// normalized AST. Programs that differ only in whitespace, comments, or the
// names they choose for variables, parameters, and functions hash the same.
// Compiled programs cannot be hashed directly because their storage ids
// are freshly generated on every compilation.
func HashProgram(prog *compiler.Program) [32]byte {
	return sha256.Sum256(Serialize(NormalizeProgram(prog)))
}

// HashSource parses src and fingerprints it.
func HashSource(src string) ([32]byte, error) {
	prog, err := compiler.Parse(src)
	if err != nil {
		return [32]byte{}, err
	}
	return HashProgram(prog), nil
}

// Hex renders a fingerprint as lowercase hex.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// CacheKey identifies one compilation of src. Compiled instructions carry
// source lines, so the key covers the exact bytes as well as the
// fingerprint: moving code around must not reuse a stale image.
func CacheKey(fingerprint [32]byte, src []byte) string {
	h := sha256.New()
	h.Write(fingerprint[:])
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}
