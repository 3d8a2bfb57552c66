package openai

import (
	"errors"
	"testing"

	errorskg "github.com/sweetpotato0/coverwise/errors"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "missing key", cfg: Config{Dimension: 8}, want: errorskg.ErrMissingConfiguration},
		{name: "bad dimension", cfg: Config{APIKey: "k"}, want: errorskg.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}

	e, err := New(Config{APIKey: "k", Dimension: 16})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.Dimension() != 16 || e.model != DefaultModel {
		t.Errorf("unexpected embedder %+v", e)
	}
}

func TestConvertVector(t *testing.T) {
	got := convertVector([]float64{0.5, 0.25, 1}, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != 0.25 {
		t.Errorf("convertVector = %v", got)
	}
	padded := convertVector([]float64{1}, 3)
	if len(padded) != 3 || padded[2] != 0 {
		t.Errorf("expected zero padding, got %v", padded)
	}
}
