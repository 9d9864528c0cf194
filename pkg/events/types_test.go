package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncode_SignupWireFields(t *testing.T) {
	data, err := Encode(UserSignup{
		Metadata: Metadata{EventID: "e1", Version: 3},
		UserID:   "u1",
		Email:    "a@b.com",
		Name:     "alice",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"userId": "u1", "email": "a@b.com", "name": "alice", "event": "user_signup"}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
	if body["version"] != float64(3) {
		t.Errorf("version = %v, want 3", body["version"])
	}
}

func TestEncode_DeleteOmitsIdentityFields(t *testing.T) {
	data, err := Encode(UserDelete{UserID: "u1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["event"] != "user_delete" || body["userId"] != "u1" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["email"]; ok {
		t.Error("delete event should not carry email")
	}
	if _, ok := body["name"]; ok {
		t.Error("delete event should not carry name")
	}
}

func TestEncode_MissingUserID(t *testing.T) {
	if _, err := Encode(UserDelete{}); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestDecode_Variants(t *testing.T) {
	ev, err := Decode([]byte(`{"userId":"u1","email":"a@b.com","name":"alice","event":"user_signup","version":7}`))
	if err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	signup, ok := ev.(UserSignup)
	if !ok {
		t.Fatalf("expected UserSignup, got %T", ev)
	}
	if signup.UserID != "u1" || signup.Email != "a@b.com" || signup.Name != "alice" || signup.Metadata.Version != 7 {
		t.Fatalf("unexpected signup %+v", signup)
	}

	ev, err = Decode([]byte(`{"userId":"u1","event":"user_delete"}`))
	if err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if del, ok := ev.(UserDelete); !ok || del.UserID != "u1" {
		t.Fatalf("unexpected delete %#v", ev)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{`,
		"missing event":     `{"userId":"u1"}`,
		"unknown tag":       `{"userId":"u1","event":"user_update"}`,
		"missing user id":   `{"event":"user_delete"}`,
		"signup no email":   `{"userId":"u1","name":"alice","event":"user_signup"}`,
		"signup no name":    `{"userId":"u1","email":"a@b.com","event":"user_signup"}`,
		"wrong field types": `{"userId":5,"event":"user_delete"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(body)); !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestEncodeDecode_PreservesMetadata(t *testing.T) {
	in := UserSignup{
		Metadata: NewMetadata("user-service", 42),
		UserID:   "u1",
		Email:    "a@b.com",
		Name:     "alice",
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Meta() != in.Metadata {
		t.Fatalf("metadata = %+v, want %+v", out.Meta(), in.Metadata)
	}
}
