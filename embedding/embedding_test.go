package embedding

import (
	"math"
	"testing"
)

func TestEmbedDeterministic(t *testing.T) {
	e := NewHash(0, 0)
	a := e.EmbedLight("5G 随机接入流程")
	b := e.EmbedLight("5G 随机接入流程")
	if len(a) != DimLight {
		t.Fatalf("expected %d dims, got %d", DimLight, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestEmbedNormalized(t *testing.T) {
	e := NewHash(64, 128)
	for _, text := range []string{"carrier aggregation", "载波聚合技术", "x"} {
		v := e.EmbedDense(text)
		if len(v) != 128 {
			t.Fatalf("expected 128 dims, got %d", len(v))
		}
		var norm float64
		for _, f := range v {
			norm += float64(f) * float64(f)
		}
		norm = math.Sqrt(norm)
		if math.Abs(norm-1.0) > 1e-4 {
			t.Errorf("norm of %q = %f, want 1.0", text, norm)
		}
	}
}

func TestEmbedDistinctTexts(t *testing.T) {
	e := NewHash(0, 0)
	a := e.EmbedLight("random access procedure")
	b := e.EmbedLight("carrier aggregation basics")
	if sim := Cosine(a, b); sim > 0.99 {
		t.Errorf("unrelated texts nearly identical: cos=%f", sim)
	}
}

func TestEmbedSharedWordsMoreSimilar(t *testing.T) {
	e := NewHash(0, 0)
	base := e.EmbedLight("载波聚合 carrier aggregation 技术详解")
	near := e.EmbedLight("载波聚合 carrier aggregation 原理")
	far := e.EmbedLight("completely unrelated text about cooking pasta")
	if Cosine(base, near) <= Cosine(base, far) {
		t.Errorf("overlapping text should score higher: near=%f far=%f",
			Cosine(base, near), Cosine(base, far))
	}
}

func TestEmbedEmptyText(t *testing.T) {
	e := NewHash(0, 0)
	v := e.EmbedLight("")
	for _, f := range v {
		if f != 0 {
			t.Fatalf("empty text should produce zero vector")
		}
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if c := Cosine(a, a); math.Abs(c-1) > 1e-9 {
		t.Errorf("self cosine = %f", c)
	}
	if c := Cosine(a, b); math.Abs(c) > 1e-9 {
		t.Errorf("orthogonal cosine = %f", c)
	}
	if c := Cosine(a, []float32{0, 0}); c != 0 {
		t.Errorf("zero-norm cosine = %f", c)
	}
	if c := Cosine(a, []float32{1}); c != 0 {
		t.Errorf("length-mismatch cosine = %f", c)
	}
}
