package dto

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

type sanitizeProbe struct {
	Note    string
	Comment *string
	Nested  struct{ Inner string }
}

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := SettleRequest{Amount: 10, Reference: "  payout-1  "}
	SanitizeStruct(&req)
	assert.Equal(t, "payout-1", req.Reference)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	p := sanitizeProbe{Note: "hi <script>alert('x')</script>"}
	SanitizeStruct(&p)

	assert.Contains(t, p.Note, "&lt;script&gt;")
	assert.NotContains(t, p.Note, "<script>")
}

func TestSanitizeStruct_PointerAndEmbedded(t *testing.T) {
	comment := "  spaced  "
	p := sanitizeProbe{Comment: &comment}
	p.Nested.Inner = " inner "
	SanitizeStruct(&p)

	assert.Equal(t, "spaced", *p.Comment)
	assert.Equal(t, "inner", p.Nested.Inner)

	req := InitiatePaymentRequest{ReferenceID: " ord-1 "}
	req.MerchantID = " m "
	SanitizeStruct(&req)
	assert.Equal(t, "ord-1", req.ReferenceID)
	assert.Equal(t, "m", req.MerchantID)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	p := sanitizeProbe{}
	SanitizeStruct(&p)
	assert.Nil(t, p.Comment)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

func TestSafeID_Valid(t *testing.T) {
	for _, tc := range []string{"ref-001", "REF_002", "a.b.c", "simple123", "ABC-def_GHI.123"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	for _, tc := range []string{"", "ref 001", "ref;DROP", "<script>", "ref/../x", "ref\n"} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %q", tc)
	}
}

func TestIsSafeID(t *testing.T) {
	assert.True(t, IsSafeID("key-1"))
	assert.False(t, IsSafeID(""))
	assert.False(t, IsSafeID("a b"))
	assert.True(t, IsSafeID(strings.Repeat("k", 64)))
	assert.False(t, IsSafeID(strings.Repeat("k", 65)))
}

func TestBinding_ReferenceLengthLimit(t *testing.T) {
	atLimit, over := strings.Repeat("r", 64), strings.Repeat("r", 65)
	payer, merchant := "6f1c2b8e-3a5d-4c1e-9b7a-2d4f6e8a0c13", "0b7e2c4a-9d1f-4e3b-8a6c-5f2d1e0c9b87"

	tests := []struct {
		name  string
		build func(ref string) any
	}{
		{"settle reference", func(ref string) any { return &SettleRequest{Amount: 1, Reference: ref} }},
		{"transfer key", func(ref string) any {
			return &TransferRequest{ReceiverID: payer, Amount: 1, IdempotencyKey: ref}
		}},
		{"initiate reference", func(ref string) any {
			req := &InitiatePaymentRequest{ReferenceID: ref}
			req.MerchantID, req.GrossAmount = merchant, 10
			return req
		}},
		{"mint reference", func(ref string) any {
			return &MintRequest{PayerID: payer, MerchantID: merchant, GrossAmount: 10, ReferenceID: ref}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NoError(t, binding.Validator.ValidateStruct(tc.build(atLimit)))
			assert.Error(t, binding.Validator.ValidateStruct(tc.build(over)))
		})
	}
}

func TestBinding_UpdateRates(t *testing.T) {
	tests := []struct {
		name string
		req  UpdateRatesRequest
		ok   bool
	}{
		{"valid", UpdateRatesRequest{CommissionRate: "2.5", RewardRate: "10"}, true},
		{"bounds", UpdateRatesRequest{CommissionRate: "0", RewardRate: "100"}, true},
		{"over 100", UpdateRatesRequest{CommissionRate: "100.01", RewardRate: "1"}, false},
		{"negative", UpdateRatesRequest{CommissionRate: "1", RewardRate: "-1"}, false},
		{"not a number", UpdateRatesRequest{CommissionRate: "abc", RewardRate: "1"}, false},
		{"negative cap", UpdateRatesRequest{CommissionRate: "1", RewardRate: "1", MaxRewardCap: -5}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tc.req)
			assert.Equal(t, tc.ok, err == nil, "err=%v", err)
		})
	}
}

func TestBinding_Transfer(t *testing.T) {
	valid := TransferRequest{ReceiverID: "6f1c2b8e-3a5d-4c1e-9b7a-2d4f6e8a0c13", Amount: 5}
	assert.NoError(t, binding.Validator.ValidateStruct(&valid))

	noAmount := valid
	noAmount.Amount = 0
	assert.Error(t, binding.Validator.ValidateStruct(&noAmount))

	badKey := valid
	badKey.IdempotencyKey = "has space"
	assert.Error(t, binding.Validator.ValidateStruct(&badKey))

	badReceiver := valid
	badReceiver.ReceiverID = "not-a-uuid"
	assert.Error(t, binding.Validator.ValidateStruct(&badReceiver))
}

func TestBinding_MintRejectsSelfPayment(t *testing.T) {
	id := "6f1c2b8e-3a5d-4c1e-9b7a-2d4f6e8a0c13"
	req := MintRequest{PayerID: id, MerchantID: id, GrossAmount: 100, ReferenceID: "ord-9"}
	assert.Error(t, binding.Validator.ValidateStruct(&req))

	req.MerchantID = "0b7e2c4a-9d1f-4e3b-8a6c-5f2d1e0c9b87"
	assert.NoError(t, binding.Validator.ValidateStruct(&req))
}
