package main

import (
	"bytes"
	"strings"
	"testing"

	"selfiebot/internal/servicetoken"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestRunMintsVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-issuer", "ops", "-subject", "alice", "-ttl", "5m"}, env(map[string]string{"ADMIN_JWT_SECRET": testSecret}), &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	verifier, err := servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
		Secret:         testSecret,
		Audience:       servicetoken.AdminAudience,
		AllowedIssuers: []string{"ops"},
	})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	claims, err := verifier.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if claims.Subject != "alice" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing secret", nil, map[string]string{}},
		{"short secret", nil, map[string]string{"ADMIN_JWT_SECRET": "short"}},
		{"ttl too long", []string{"-ttl", "48h"}, map[string]string{"ADMIN_JWT_SECRET": testSecret}},
		{"unknown flag", []string{"-nope"}, map[string]string{"ADMIN_JWT_SECRET": testSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(tt.args, env(tt.env), &out); err == nil {
				t.Fatalf("expected error, got token %q", out.String())
			}
		})
	}
}
