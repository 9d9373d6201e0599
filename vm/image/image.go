package image

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/msq-lang/msq/vm"
)

// ---------------------------------------------------------------------------
// Image Format
// ---------------------------------------------------------------------------

// Magic identifies a compiled msq image (.msqc).
var Magic = [4]byte{'M', 'S', 'Q', 'C'}

// Version of the image payload.
// v1: initial format
const Version uint32 = 1

// Extension is the file extension for compiled images.
const Extension = ".msqc"

// Image is a compiled program plus what is needed to tell whether it is
// still current.
type Image struct {
	Version     uint32      `cbor:"1,keyasint"`
	Fingerprint string      `cbor:"2,keyasint,omitempty"` // hash of the source program
	Source      string      `cbor:"3,keyasint,omitempty"` // source path, informational
	Program     *vm.Program `cbor:"4,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes an image: the magic bytes followed by canonical CBOR.
// Canonical encoding makes equal images byte-identical.
func Marshal(img *Image) ([]byte, error) {
	if img.Program == nil {
		return nil, fmt.Errorf("image: marshal: no program")
	}
	if img.Version == 0 {
		img.Version = Version
	}
	payload, err := encMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(payload))
	out = append(out, Magic[:]...)
	return append(out, payload...), nil
}

// Unmarshal deserializes an image written by Marshal.
func Unmarshal(data []byte) (*Image, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, fmt.Errorf("image: not a compiled msq image")
	}
	var img Image
	if err := cbor.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d (want %d)", img.Version, Version)
	}
	if img.Program == nil {
		return nil, fmt.Errorf("image: unmarshal: no program")
	}
	return &img, nil
}

// WriteFile writes img to path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads an image from path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}
