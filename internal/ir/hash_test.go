package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRemovesAllWhitespace(t *testing.T) {
	assert.Equal(t, "returna+b;", Normalize("  return a +\tb;\n\r\n"))
	assert.Equal(t, "", Normalize(" \t\n  "))
}

func TestNormalizeKeepsUnicodeForms(t *testing.T) {
	// "é" composed vs "e" + combining acute
	assert.NotEqual(t, Normalize("caf\u00e9"), Normalize("cafe\u0301"))
	assert.False(t, SameSource("'caf\u00e9'", "'cafe\u0301'"))
}

func TestNormalizeMatchesJavaScriptWhitespace(t *testing.T) {
	assert.Equal(t, "ab", Normalize("a\uFEFFb"), "BOM is \\s in JavaScript")
	assert.Equal(t, "a\u0085b", Normalize("a\u0085b"), "NEL is not \\s in JavaScript")
	assert.Equal(t, "ab", Normalize("a\u00a0\u2028\u3000\vb"))
}

func TestNormalizationOnly(t *testing.T) {
	assert.True(t, NormalizationOnly("return 'caf\u00e9';", "return 'cafe\u0301';"))
	assert.False(t, NormalizationOnly("return 'caf\u00e9';", "return  'caf\u00e9';"), "equal source is no change at all")
	assert.False(t, NormalizationOnly("return a + b;", "return a - b;"))
}

func TestDigestDeterminism(t *testing.T) {
	d1 := Digest("return a + b;")
	d2 := Digest("return a + b;")

	assert.Equal(t, d1, d2, "Digest must be deterministic")
	assert.Len(t, d1, 28, "base64 SHA-1 is 28 characters")
}

func TestDigestIgnoresWhitespaceEdits(t *testing.T) {
	original := "let x = a + b;\nreturn x;"
	reindented := "\n    let x = a + b;\n\n        return   x;\n"

	assert.Equal(t, Digest(original), Digest(reindented))
	assert.True(t, SameSource(original, reindented))
}

func TestDigestDetectsSemanticEdits(t *testing.T) {
	base := "return a + b;"
	for name, edited := range map[string]string{
		"altered":  "return a - b;",
		"added":    "plv8.elog(NOTICE, 'hi'); return a + b;",
		"removed":  "return a;",
		"literals": "return 'a + b';",
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, Digest(base), Digest(edited))
		})
	}
}

func TestDigestKnownValue(t *testing.T) {
	// sha1("") base64
	assert.Equal(t, "2jmj7l5rSw0yVb/vlWAYkK/YBwk=", Digest("   \n"))
}
