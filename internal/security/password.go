package security

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// BcryptHasher is the one-way hash used for stored passwords.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(raw string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// VerifyDummy burns the same work as Verify for identities that do not
// exist, keeping response times of the two failure paths alike.
func (h *BcryptHasher) VerifyDummy(raw string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(raw))
}
