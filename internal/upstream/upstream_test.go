package upstream

import (
	"errors"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

const testSecret = "whsec_core_test"

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	body := []byte(`{"id":"evt-1"}`)
	header := SignatureHeader(testSecret, now.Unix(), body)

	if err := VerifySignature(testSecret, header, body, 5*time.Minute, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature("other", header, body, 5*time.Minute, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("wrong secret should fail, got %v", err)
	}
	if err := VerifySignature(testSecret, header, []byte(`{"id":"evt-2"}`), 5*time.Minute, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered body should fail, got %v", err)
	}
	if err := VerifySignature(testSecret, header, body, 5*time.Minute, now.Add(10*time.Minute)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("stale timestamp should fail, got %v", err)
	}
	if err := VerifySignature(testSecret, "v1=abc", body, 0, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("missing timestamp should fail, got %v", err)
	}
	if err := VerifySignature("", header, body, 0, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("unconfigured secret should fail, got %v", err)
	}
}

func TestParseCoreEventPurchase(t *testing.T) {
	now := time.Unix(1760000000, 0)
	body := []byte(`{"id":"evt-9","type":"purchase.completed","occurred_at":"2025-10-09T08:00:00Z",` +
		`"data":{"referred_user_id":42,"purchase_amount":"150.00","upstream_commission":30}}`)
	event, err := ParseCoreEvent(testSecret, SignatureHeader(testSecret, now.Unix(), body), body, 5*time.Minute, now)
	if err != nil {
		t.Fatalf("parse core event failed: %v", err)
	}
	if event.Key() != "core:evt-9" {
		t.Fatalf("unexpected key: %s", event.Key())
	}
	if event.Type != constants.UpstreamEventPurchaseCompleted || event.ReferredUserID != 42 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.PurchaseAmount.Equal(decimal.RequireFromString("150")) || !event.UpstreamCommission.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("unexpected amounts: %s / %s", event.PurchaseAmount, event.UpstreamCommission)
	}
}

func TestParseCoreEventKeepsZeroCommission(t *testing.T) {
	now := time.Unix(1760000000, 0)
	body := []byte(`{"id":"evt-10","type":"purchase.completed","data":{"referred_user_id":42,"purchase_amount":12.5,"upstream_commission":0}}`)
	event, err := ParseCoreEvent(testSecret, SignatureHeader(testSecret, now.Unix(), body), body, 0, now)
	if err != nil {
		t.Fatalf("parse core event failed: %v", err)
	}
	if !event.UpstreamCommission.IsZero() {
		t.Fatalf("explicit zero commission must stay zero, got %s", event.UpstreamCommission)
	}
	if !event.PurchaseAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected purchase amount %s", event.PurchaseAmount)
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("occurred_at should default to receive time")
	}
}

func TestParseCoreEventRejectsInvalidPayload(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cases := map[string]string{
		"unknown type":     `{"id":"e1","type":"order.shipped","data":{"referred_user_id":1}}`,
		"missing user":     `{"id":"e2","type":"subscription.started","data":{}}`,
		"missing code":     `{"id":"e3","type":"referral.created","data":{"referred_user_id":1}}`,
		"zero purchase":    `{"id":"e4","type":"purchase.completed","data":{"referred_user_id":1,"purchase_amount":0}}`,
		"no commission":    `{"id":"e6","type":"purchase.completed","data":{"referred_user_id":1,"purchase_amount":150}}`,
		"missing period":   `{"id":"e5","type":"subscription.renewed","data":{"referred_user_id":1}}`,
		"missing event id": `{"type":"subscription.started","data":{"referred_user_id":1}}`,
		"not json":         `{`,
	}
	for name, raw := range cases {
		body := []byte(raw)
		_, err := ParseCoreEvent(testSecret, SignatureHeader(testSecret, now.Unix(), body), body, 0, now)
		if !errors.Is(err, ErrPayloadInvalid) {
			t.Fatalf("%s: want ErrPayloadInvalid got %v", name, err)
		}
	}
}
