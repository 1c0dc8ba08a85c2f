package security

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		Text  string `json:"text"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"ok", `{"text":"hi","count":3}`, nil},
		{"unknown field", `{"text":"hi","extra":1}`, ErrInvalidJSON},
		{"garbage", `{"text":`, ErrInvalidJSON},
		{"empty", ``, ErrInvalidJSON},
		{"too deep", strings.Repeat("[", 17) + strings.Repeat("]", 17), ErrJSONTooDeep},
		{"too large", `{"text":"` + strings.Repeat("a", DefaultMaxMessageSize) + `"}`, ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var b body
			err := DecodeJSON([]byte(tt.data), &b)
			if tt.wantErr == nil {
				if err != nil || b.Text != "hi" || b.Count != 3 {
					t.Errorf("DecodeJSON = %+v, %v", b, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	var v map[string]int
	if err := ReadJSON(strings.NewReader(`{"count":5}`), &v); err != nil || v["count"] != 5 {
		t.Errorf("ReadJSON = %v, %v", v, err)
	}
}

func TestValidateSessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id string
		ok bool
	}{
		{"s1", true},
		{"chat-1", true},
		{"7f9c2ba4-e88f-4a8c-9d1b-0c2f3e4a5b6c", true},
		{"team:fanuc_line.3", true},
		{strings.Repeat("a", MaxSessionIDLength), true},
		{"", false},
		{strings.Repeat("a", MaxSessionIDLength+1), false},
		{"has space", false},
		{"../etc", false},
		{"caf\u00e9", false},
		{"a%2Fb", false},
	}
	for _, tt := range tests {
		err := ValidateSessionID(tt.id)
		if tt.ok && err != nil {
			t.Errorf("ValidateSessionID(%q) = %v", tt.id, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateSessionID(%q) = %v, want ErrInvalidID", tt.id, err)
		}
	}
}
