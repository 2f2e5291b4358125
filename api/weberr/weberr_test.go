package weberr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResponse(t *testing.T) {
	err := fmt.Errorf("handler: %w", TooManyRequests(errors.New("limit")))

	body, status, ok := Response(err)
	if !ok {
		t.Fatal("expected a response to be attached")
	}
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", status)
	}
	if diff := cmp.Diff(&ErrorResponse{"too many requests, try again later"}, body); diff != "" {
		t.Fatalf("unexpected body (-want +got):\n%s", diff)
	}
}

func TestBadRequestExposesMessage(t *testing.T) {
	_, _, ok := Response(errors.New("plain"))
	if ok {
		t.Fatal("plain errors carry no response")
	}

	body, status, _ := Response(BadRequest(errors.New("email is required")))
	if status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", status)
	}
	if got := body.(*ErrorResponse).Error; got != "email is required" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestFields(t *testing.T) {
	inner := Wrap(errors.New("x"), WithFields(map[string]any{"payment_id": "p1", "sku": "inner"}))
	outer := Wrap(fmt.Errorf("wrapped: %w", inner), WithFields(map[string]any{"sku": "outer"}))

	got, ok := Fields(outer)
	if !ok {
		t.Fatal("expected fields")
	}

	want := map[string]any{"payment_id": "p1", "sku": "outer"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected fields (-want +got):\n%s", diff)
	}
}
