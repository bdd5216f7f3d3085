package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ctpy/internal/model"
)

func TestDecodeModeDefinitionFixture(t *testing.T) {
	def, err := DecodeRecord[model.ModeDefinition](readFixture(t, "mode_definition_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if def.ID != "modes-even-4" || def.NumModes != 4 || len(def.Boundaries) != 4 {
		t.Fatalf("unexpected mode definition: %+v", def)
	}
	if def.Boundaries[3].Upper != 1000000000 {
		t.Fatalf("unexpected last upper boundary: %v", def.Boundaries[3].Upper)
	}
}

func TestDecodeClassifiedSampleFixture(t *testing.T) {
	sample, err := DecodeRecord[model.ClassifiedSample](readFixture(t, "classified_sample_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(sample.Individuals) != 3 || sample.Individuals[2].Class != "3-3" {
		t.Fatalf("unexpected individuals: %+v", sample.Individuals)
	}
	if sample.Generation != 4000 || sample.Coarseness != 4 {
		t.Fatalf("unexpected metadata: %+v", sample)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	_, err := DecodeRecord[model.ModeDefinition](readFixture(t, "mode_definition_v2.json"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestEncodeDecodeGenerationStats(t *testing.T) {
	p := 0.4
	in := model.GenerationStats{
		VersionedRecord: model.CurrentVersion(),
		ID:              "g1",
		ModeRichness:    []int{3, 1},
		ClassNeutrality: &p,
	}
	data, err := EncodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeRecord[model.GenerationStats](data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ClassNeutrality == nil || *out.ClassNeutrality != p || out.ModeRichness[0] != 3 {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
