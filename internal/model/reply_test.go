package model

import (
	"encoding/json"
	"testing"
)

func TestReplyText(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   string
		wantOK bool
	}{
		{"full path", `{"choices":[{"message":{"role":"assistant","content":"X"}}]}`, "X", true},
		{"empty content", `{"choices":[{"message":{"content":""}}]}`, "", true},
		{"first choice wins", `{"choices":[{"message":{"content":"A"}},{"message":{"content":"B"}}]}`, "A", true},
		{"no data", ``, "", false},
		{"null data", `null`, "", false},
		{"data not an object", `"hello"`, "", false},
		{"no choices", `{"id":"x"}`, "", false},
		{"empty choices", `{"choices":[]}`, "", false},
		{"choices not a list", `{"choices":{"message":{"content":"X"}}}`, "", false},
		{"null choice", `{"choices":[null]}`, "", false},
		{"no message", `{"choices":[{"index":0}]}`, "", false},
		{"message not an object", `{"choices":[{"message":"X"}]}`, "", false},
		{"no content", `{"choices":[{"message":{"role":"assistant"}}]}`, "", false},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, "", false},
		{"content not a string", `{"choices":[{"message":{"content":[1,2]}}]}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReplyText(json.RawMessage(tt.data))
			if ok != tt.wantOK {
				t.Errorf("ReplyText() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ReplyText() = %q, want %q", got, tt.want)
			}
		})
	}
}
