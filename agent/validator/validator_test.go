package validator

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

func TestMobileValidator(t *testing.T) {
	t.Parallel()

	v, ok := NewRegistry().Lookup(NameMobile)
	if !ok {
		t.Fatal("mobile validator not registered")
	}

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "9876543210", want: "9876543210"},
		{in: "+91 98765 43210", want: "9876543210"},
		{in: "09876543210", want: "9876543210"},
		{in: "91-9876-543-210", want: "9876543210"},
		{in: "1234567890", wantErr: true},
		{in: "98765", wantErr: true},
		{in: "not a number", wantErr: true},
	}
	for _, tc := range cases {
		got, err := v.Validate(tc.in)
		if tc.wantErr {
			if !errors.Is(err, contractx.ErrValidation) {
				t.Fatalf("Validate(%q) error = %v, want ErrValidation", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Validate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPincodeValidator(t *testing.T) {
	t.Parallel()

	v, _ := NewRegistry().Lookup(NamePincode)

	if got, err := v.Validate("400 001"); err != nil || got != "400001" {
		t.Fatalf("Validate(400 001) = %q, %v", got, err)
	}
	if _, err := v.Validate("012345"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("leading zero pincode accepted: %v", err)
	}
	if _, err := v.Validate("1234"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("short pincode accepted: %v", err)
	}
}

func TestEmailValidator(t *testing.T) {
	t.Parallel()

	v, _ := NewRegistry().Lookup(NameEmail)

	if got, err := v.Validate("  Asha@Example.COM "); err != nil || got != "asha@example.com" {
		t.Fatalf("Validate(email) = %q, %v", got, err)
	}
	if _, err := v.Validate("not-an-email"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("invalid email accepted: %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.Register(NameMobile, Func(func(raw string) (string, error) { return raw, nil }))
	if err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestRegistryHas(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{NameMobile, NamePincode, NameEmail, NameText} {
		if !r.Has(name) {
			t.Fatalf("builtin %q missing", name)
		}
	}
	if r.Has("unknown") {
		t.Fatal("unknown validator reported present")
	}
}
