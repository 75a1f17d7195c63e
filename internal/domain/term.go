package domain

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Confidence bounds shared by terms, translations and rules.
const (
	MinConfidence     = 0.0
	MaxConfidence     = 1.0
	DefaultConfidence = 0.5
)

// TermKey identifies an ObjectTerm. Re-teaching the same key replaces the
// stored record instead of adding a second one.
type TermKey struct {
	LocalTerm string
	Language  string
	Dialect   string
}

// Normalized returns the key with every component run through NormalizeText.
func (k TermKey) Normalized() TermKey {
	return TermKey{
		LocalTerm: NormalizeText(k.LocalTerm),
		Language:  NormalizeText(k.Language),
		Dialect:   NormalizeText(k.Dialect),
	}
}

// Digest is the content address of the key: a blake2b-256 hex digest of the
// normalized components. Both stores enforce uniqueness on it, so an absent
// dialect and an empty one resolve to the same record.
func (k TermKey) Digest() string {
	n := k.Normalized()
	return digest(n.LocalTerm, n.Language, n.Dialect)
}

func (k TermKey) String() string {
	n := k.Normalized()
	if n.Dialect == "" {
		return n.LocalTerm + "@" + n.Language
	}
	return n.LocalTerm + "@" + n.Language + "/" + n.Dialect
}

// ObjectTerm is a learned association between a physical object and a local term.
type ObjectTerm struct {
	ID         uuid.UUID
	ObjectName string
	LocalTerm  string
	Language   string
	Region     *string
	Context    *string
	Dialect    *string
	Signature  Signature
	Confidence float64
	AddedBy    *string
	Verified   bool
	UsageCount int
	LastUsed   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the uniqueness key of the term.
func (t *ObjectTerm) Key() TermKey {
	k := TermKey{LocalTerm: t.LocalTerm, Language: t.Language}
	if t.Dialect != nil {
		k.Dialect = *t.Dialect
	}
	return k
}

// ClampConfidence limits c to [MinConfidence, MaxConfidence].
func ClampConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

func digest(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
