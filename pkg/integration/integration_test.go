package integration

import "testing"

func TestValidateCredentialRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"encrypted is accepted", "encrypted://tenant/acme/key-1", false},
		{"cus-vault is accepted", "cus-vault://secrets/acme/openai", false},
		{"env is accepted", "env://OPENAI_API_KEY", false},
		{"legacy vault is rejected", "vault://secret/acme/openai", true},
		{"unknown scheme is rejected", "s3://bucket/key", true},
		{"empty is rejected", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentialRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCredentialRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}
