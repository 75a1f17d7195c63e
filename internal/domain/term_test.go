package domain

import (
	"errors"
	"testing"
)

func TestTermKey_DigestNormalizes(t *testing.T) {
	t.Parallel()

	a := TermKey{LocalTerm: "Umthi", Language: "XHO"}
	b := TermKey{LocalTerm: "  umthi ", Language: "xho", Dialect: ""}
	c := TermKey{LocalTerm: "umthi", Language: "xho", Dialect: "mpondo"}

	if a.Digest() != b.Digest() {
		t.Error("keys differing only in case and spacing should share a digest")
	}
	if a.Digest() == c.Digest() {
		t.Error("dialect must be part of the digest")
	}
	if len(a.Digest()) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a.Digest()))
	}
}

func TestTermKey_DigestSeparatesComponents(t *testing.T) {
	t.Parallel()

	a := TermKey{LocalTerm: "ab", Language: "c"}
	b := TermKey{LocalTerm: "a", Language: "bc"}
	if a.Digest() == b.Digest() {
		t.Error("component boundaries must affect the digest")
	}
}

func TestObjectTerm_Key(t *testing.T) {
	t.Parallel()

	dialect := "mpondo"
	term := ObjectTerm{LocalTerm: "umthi", Language: "xho", Dialect: &dialect}
	if got := term.Key(); got.Dialect != "mpondo" || got.LocalTerm != "umthi" {
		t.Errorf("Key() = %+v", got)
	}
	if got := term.Key().String(); got != "umthi@xho/mpondo" {
		t.Errorf("Key().String() = %q", got)
	}

	term.Dialect = nil
	if got := term.Key().String(); got != "umthi@xho" {
		t.Errorf("Key().String() without dialect = %q", got)
	}
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	for in, want := range map[float64]float64{-0.3: 0, 0: 0, 0.42: 0.42, 1: 1, 1.7: 1} {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestTranslationKey_Digest(t *testing.T) {
	t.Parallel()

	a := TranslationKey{SourceText: "Good morning", TargetText: "Molo", SourceLang: "en", TargetLang: "xho"}
	b := TranslationKey{SourceText: "good  morning", TargetText: "molo", SourceLang: "EN", TargetLang: "xho"}
	swapped := TranslationKey{SourceText: "molo", TargetText: "good morning", SourceLang: "xho", TargetLang: "en"}

	if a.Digest() != b.Digest() {
		t.Error("normalized keys should share a digest")
	}
	if a.Digest() == swapped.Digest() {
		t.Error("direction must be part of the digest")
	}
}

func TestLanguages_Check(t *testing.T) {
	t.Parallel()

	langs := ParseLanguages("xho, zul,,AFR")
	if langs.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", langs.Len())
	}

	code, err := langs.Check(" XHO ")
	if err != nil || code != "xho" {
		t.Errorf("Check(XHO) = %q, %v", code, err)
	}

	if _, err := langs.Check("klingon"); err == nil {
		t.Error("expected error for unregistered language")
	} else if !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("expected ErrInvalidLanguage, got %v", err)
	}

	if got := langs.Codes(); len(got) != 3 || got[0] != "afr" || got[2] != "zul" {
		t.Errorf("Codes() = %v", got)
	}
}

func TestLanguages_NilAcceptsAny(t *testing.T) {
	t.Parallel()

	var langs *Languages
	code, err := langs.Check(" Klingon ")
	if err != nil || code != "klingon" {
		t.Errorf("Check = %q, %v", code, err)
	}
	if _, err := langs.Check("  "); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("blank code: got %v, want ErrInvalidLanguage", err)
	}
	if langs.Len() != 0 || langs.Codes() != nil {
		t.Error("nil registry must be empty")
	}
}
