package security

import (
	"os"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	// Light hashing parameters keep the suite fast.
	if err := ConfigureArgon2(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !strings.HasPrefix(hash, "argon2id$v=19$") {
		t.Errorf("hash = %q, want argon2id prefix with parameters", hash)
	}

	ok, err := VerifyPassword("Str0ng!pass", hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}

	ok, err = VerifyPassword("wrong-pass", hash)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	first, err := HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same password must differ")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"not-a-hash",
		"md5$deadbeef",
		"argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA",
	}

	for _, encoded := range cases {
		if _, err := VerifyPassword("whatever", encoded); err == nil {
			t.Errorf("VerifyPassword(%q) expected error", encoded)
		}
	}
}

func TestVerifyPasswordEmptyInputs(t *testing.T) {
	ok, err := VerifyPassword("", "anything")
	if err != nil || ok {
		t.Errorf("empty password: ok=%v err=%v, want false nil", ok, err)
	}

	ok, err = VerifyPassword("password", "")
	if err != nil || ok {
		t.Errorf("empty hash: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestConfigureArgon2RejectsWeakParameters(t *testing.T) {
	cases := []Argon2Config{
		{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 0, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 0, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 4, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 8},
	}

	for i, cfg := range cases {
		if err := ConfigureArgon2(cfg); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
