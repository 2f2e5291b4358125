package payment

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
		want Metadata
	}{
		{
			name: "list",
			raw:  map[string]string{"email": "buyer@example.com", "skus": `["office-package","salon-package"]`},
			want: Metadata{Email: "buyer@example.com", SKUs: []string{"office-package", "salon-package"}},
		},
		{
			name: "legacy single sku",
			raw:  map[string]string{"email": "buyer@example.com", "sku": "office-package"},
			want: Metadata{Email: "buyer@example.com", SKUs: []string{"office-package"}},
		},
		{
			name: "list wins over legacy key",
			raw:  map[string]string{"email": "buyer@example.com", "sku": "barbershop-package", "skus": `["salon-package"]`},
			want: Metadata{Email: "buyer@example.com", SKUs: []string{"salon-package"}},
		},
		{
			name: "repeats dropped",
			raw:  map[string]string{"email": "buyer@example.com", "skus": `["office-package"," office-package",""]`},
			want: Metadata{Email: "buyer@example.com", SKUs: []string{"office-package"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetadata(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMetadataMissing(t *testing.T) {
	for _, raw := range []map[string]string{
		nil,
		{"skus": `["office-package"]`},
		{"email": "buyer@example.com"},
		{"email": "buyer@example.com", "skus": `[]`},
		{"email": "buyer@example.com", "skus": `office-package`},
	} {
		if _, err := ParseMetadata(raw); !errors.Is(err, ErrMissingMetadata) {
			t.Errorf("%v: expected ErrMissingMetadata, got %v", raw, err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Metadata{Email: "buyer@example.com", SKUs: []string{"office-package"}}

	raw := m.Encode()
	if raw["skus"] != `["office-package"]` {
		t.Fatalf("a single sku must still be a list, got %q", raw["skus"])
	}
	if _, ok := raw["sku"]; ok {
		t.Fatal("the legacy key must not be written")
	}

	got, err := ParseMetadata(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}
