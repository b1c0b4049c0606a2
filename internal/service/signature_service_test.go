package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testGatewaySecret = "gateway-shared-secret"

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := `POST|/api/v1/payments/confirm|1760659200|n-1|{"reference_id":"ORD-1"}`

	signature := svc.Sign(testGatewaySecret, payload)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature)
	assert.True(t, svc.Verify(testGatewaySecret, payload, signature))
	assert.True(t, svc.Verify(testGatewaySecret, payload, strings.ToUpper(signature)), "hex case should not matter")
}

func TestHMACSignatureService_VerifyRejects(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := "confirm ORD-1"
	good := svc.Sign(testGatewaySecret, payload)

	tests := []struct {
		name      string
		secret    string
		payload   string
		signature string
	}{
		{"wrong secret", "other-secret", payload, good},
		{"tampered payload", testGatewaySecret, "confirm ORD-2", good},
		{"garbage signature", testGatewaySecret, payload, "deadbeef"},
		{"empty signature", testGatewaySecret, payload, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, svc.Verify(tt.secret, tt.payload, tt.signature))
		})
	}
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.Equal(t, svc.Sign("key", "data"), svc.Sign("key", "data"))
}

func TestHMACSignatureService_BuildCanonicalString(t *testing.T) {
	svc := NewHMACSignatureService()

	got := svc.BuildCanonicalString("post", "/api/v1/payments/mint", 1760659200, "abc123", `{"gross_amount":200}`)
	assert.Equal(t, `POST|/api/v1/payments/mint|1760659200|abc123|{"gross_amount":200}`, got)

	empty := svc.BuildCanonicalString("POST", "/api/v1/payments/fail", 1760659200, "n", "")
	assert.Equal(t, "POST|/api/v1/payments/fail|1760659200|n|", empty)
}
