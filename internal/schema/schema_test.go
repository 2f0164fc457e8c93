package schema

import "testing"

func TestRequireStringRejectsMissingAndEmpty(t *testing.T) {
	if e := RequireString(map[string]any{}, "id"); e == nil || e.Kind != ErrMissingField {
		t.Fatalf("expected missing_field for an absent key, got %+v", e)
	}
	if e := RequireString(map[string]any{"id": ""}, "id"); e == nil || e.Kind != ErrWrongType {
		t.Fatalf("expected wrong_type for an empty string, got %+v", e)
	}
	if e := RequireString(map[string]any{"id": 5}, "id"); e == nil || e.Kind != ErrWrongType {
		t.Fatalf("expected wrong_type for a non-string value, got %+v", e)
	}
	if e := RequireString(map[string]any{"id": "ok"}, "id"); e != nil {
		t.Fatalf("expected no error for a valid string, got %+v", e)
	}
}

func TestRequireFieldAllowsZeroValues(t *testing.T) {
	if e := RequireField(map[string]any{"ts": float64(0)}, "ts"); e != nil {
		t.Fatalf("expected zero-value field present to pass, got %+v", e)
	}
	if e := RequireField(map[string]any{}, "ts"); e == nil {
		t.Fatal("expected missing field to fail")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected registering the same (name, version) twice to panic")
		}
	}()
	v := NewValidator()
	d := Descriptor{Key: Key{Name: "x", Version: 1}, Check: func(map[string]any) *ValidationError { return nil }}
	v.Register(d)
	v.Register(d)
}

func TestValidateUnknownSchema(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate([]byte(`{"schema_name":"nope","schema_version":1}`))
	if err == nil || err.Kind != ErrUnknownSchema {
		t.Fatalf("expected unknown_schema, got %+v", err)
	}
}

func TestValidateMalformedJSON(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate([]byte(`not json`))
	if err == nil || err.Kind != ErrWrongType {
		t.Fatalf("expected wrong_type for malformed JSON, got %+v", err)
	}
}

func TestDefaultValidatesChatMessage(t *testing.T) {
	v := Default()
	raw := []byte(`{"schema_name":"chat.message","schema_version":1,"id":"h1","room_id":"room:demo","ts":1,"origin":"human","content":"hi"}`)
	if _, err := v.Validate(raw); err != nil {
		t.Fatalf("expected a valid chat.message to pass, got %+v", err)
	}
}

func TestDefaultRejectsInvalidOrigin(t *testing.T) {
	v := Default()
	raw := []byte(`{"schema_name":"chat.message","schema_version":1,"id":"h1","room_id":"room:demo","ts":1,"origin":"alien","content":"hi"}`)
	_, err := v.Validate(raw)
	if err == nil || err.Kind != ErrInvalidValue {
		t.Fatalf("expected invalid_value for a bad origin, got %+v", err)
	}
}

func TestDefaultRejectsOversizedObservationSummary(t *testing.T) {
	v := Default()
	big := make([]byte, 0, 600)
	for i := 0; i < 600; i++ {
		big = append(big, 'a')
	}
	raw := []byte(`{"schema_name":"stream.observation","schema_version":1,"id":"o1","room_id":"room:demo","frame_id":"f1","summary":"` + string(big) + `"}`)
	_, err := v.Validate(raw)
	if err == nil || err.Kind != ErrInvalidValue {
		t.Fatalf("expected invalid_value for an oversized summary, got %+v", err)
	}
}

func TestDefaultValidatesStreamObservation(t *testing.T) {
	v := Default()
	raw := []byte(`{"schema_name":"stream.observation","schema_version":1,"id":"o1","room_id":"room:demo","frame_id":"f1","summary":"hype moment"}`)
	if _, err := v.Validate(raw); err != nil {
		t.Fatalf("expected a valid stream.observation to pass, got %+v", err)
	}
}
