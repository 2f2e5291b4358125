package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	metaEmail = "email"
	metaSKUs  = "skus"

	// metaSKU is the single-product key of payments created before skus
	// became a list. It is only read.
	metaSKU = "sku"
)

var ErrMissingMetadata = errors.New("payment metadata is incomplete")

// Metadata is what a payment carries from checkout to fulfillment.
type Metadata struct {
	Email string
	SKUs  []string
}

// Encode always writes the sku list as a JSON array, even for one product.
func (m Metadata) Encode() map[string]string {
	b, _ := json.Marshal(m.SKUs)
	return map[string]string{
		metaEmail: m.Email,
		metaSKUs:  string(b),
	}
}

// ParseMetadata reads metadata written by Encode or by the older single-sku
// form.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	email := strings.TrimSpace(raw[metaEmail])
	if email == "" {
		return Metadata{}, fmt.Errorf("%w: no email", ErrMissingMetadata)
	}

	var skus []string
	switch {
	case raw[metaSKUs] != "":
		if err := json.Unmarshal([]byte(raw[metaSKUs]), &skus); err != nil {
			return Metadata{}, fmt.Errorf("%w: skus %q: %v", ErrMissingMetadata, raw[metaSKUs], err)
		}
	case raw[metaSKU] != "":
		skus = []string{raw[metaSKU]}
	}

	skus = Normalize(skus)
	if len(skus) == 0 {
		return Metadata{}, fmt.Errorf("%w: no skus", ErrMissingMetadata)
	}

	return Metadata{Email: email, SKUs: skus}, nil
}

// Normalize trims skus and drops blanks and repeats, keeping first-seen order.
func Normalize(skus []string) []string {
	seen := make(map[string]bool, len(skus))
	out := make([]string, 0, len(skus))
	for _, s := range skus {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
