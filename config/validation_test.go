package config

import (
	"errors"
	"strings"
	"testing"

	errorskg "github.com/sweetpotato0/coverwise/errors"
)

func TestValidatorRules(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(v *Validator)
		wantError bool
	}{
		{"non-empty ok", func(v *Validator) { v.RequireNonEmpty("f", "x") }, false},
		{"empty", func(v *Validator) { v.RequireNonEmpty("f", "") }, true},
		{"positive ok", func(v *Validator) { v.RequirePositive("f", 1) }, false},
		{"zero not positive", func(v *Validator) { v.RequirePositive("f", 0) }, true},
		{"non-negative ok", func(v *Validator) { v.RequireNonNegative("f", 0) }, false},
		{"negative", func(v *Validator) { v.RequireNonNegative("f", -1) }, true},
		{"range lower bound", func(v *Validator) { v.ValidateRange("f", 1, 1, 10) }, false},
		{"range above", func(v *Validator) { v.ValidateRange("f", 11, 1, 10) }, true},
		{"float range ok", func(v *Validator) { v.ValidateFloatRange("f", 0.3, 0, 1) }, false},
		{"float range above", func(v *Validator) { v.ValidateFloatRange("f", 1.01, 0, 1) }, true},
		{"port ok", func(v *Validator) { v.ValidatePort("f", 8080) }, false},
		{"port zero", func(v *Validator) { v.ValidatePort("f", 0) }, true},
		{"port too large", func(v *Validator) { v.ValidatePort("f", 65536) }, true},
		{"redis db ok", func(v *Validator) { v.ValidateDBNumber("f", 15) }, false},
		{"redis db too large", func(v *Validator) { v.ValidateDBNumber("f", 16) }, true},
		{"one of ok", func(v *Validator) { v.ValidateOneOf("f", "file", "none", "file") }, false},
		{"one of rejected", func(v *Validator) { v.ValidateOneOf("f", "s3", "none", "file") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.apply(v)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v (errors: %v)", v.HasErrors(), tt.wantError, v.Errors())
			}
		})
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field1", "")
	v.RequirePositive("field2", 0)
	v.ValidatePort("field3", 99999)

	if len(v.Errors()) != 3 {
		t.Errorf("Errors() count = %d, want 3", len(v.Errors()))
	}
	err := v.Error()
	if !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("Error() = %v, want ErrInvalidInput", err)
	}
	for _, field := range []string{"field1", "field2", "field3"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error message missing %s: %v", field, err)
		}
	}
	if NewValidator().Error() != nil {
		t.Error("empty validator should return nil")
	}
}
