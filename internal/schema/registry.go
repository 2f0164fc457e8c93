package schema

import "github.com/chatsim/chatsim/internal/chatmodel"

// Default returns a validator pre-registered with the core record schemas
// at schema_version 1. Call Register on the result to add local extensions.
func Default() *Validator {
	v := NewValidator()

	v.Register(Descriptor{
		Key: Key{Name: chatmodel.SchemaChatMessage, Version: 1},
		Check: func(body map[string]any) *ValidationError {
			if e := RequireString(body, "id"); e != nil {
				return e
			}
			if e := RequireString(body, "room_id"); e != nil {
				return e
			}
			if e := RequireField(body, "ts"); e != nil {
				return e
			}
			if e := RequireString(body, "origin"); e != nil {
				return e
			}
			if e := RequireField(body, "content"); e != nil {
				return e
			}
			origin, _ := body["origin"].(string)
			switch origin {
			case string(chatmodel.OriginHuman), string(chatmodel.OriginBot), string(chatmodel.OriginSystem):
			default:
				return &ValidationError{Kind: ErrInvalidValue, Path: "origin", Message: "must be human, bot, or system"}
			}
			return nil
		},
	})

	v.Register(Descriptor{
		Key: Key{Name: chatmodel.SchemaStreamObservation, Version: 1},
		Check: func(body map[string]any) *ValidationError {
			if e := RequireString(body, "id"); e != nil {
				return e
			}
			if e := RequireString(body, "room_id"); e != nil {
				return e
			}
			if e := RequireString(body, "frame_id"); e != nil {
				return e
			}
			if e := RequireField(body, "summary"); e != nil {
				return e
			}
			if s, ok := body["summary"].(string); ok && len(s) > chatmodel.MaxSummaryChars {
				return &ValidationError{Kind: ErrInvalidValue, Path: "summary", Message: "exceeds max summary length"}
			}
			return nil
		},
	})

	return v
}
