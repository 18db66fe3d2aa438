package credential

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSigner is the reference credential signature algorithm named in
// spec.md §6.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner builds a signer over the shared key distributed to node
// agents at agent start.
func NewHMACSigner(key []byte) *HMACSigner {
	return &HMACSigner{key: key}
}

func (s *HMACSigner) Sign(data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Verify(data, sig []byte) bool {
	expected, _ := s.Sign(data)
	return hmac.Equal(expected, sig)
}
