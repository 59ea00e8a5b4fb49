package codec

// Bytes is an identity codec for []byte values. Encode/Decode return the
// input unchanged. Useful when a caller stores pre-encoded derivative bytes
// and only needs renderq's record framing and generation validation.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }
