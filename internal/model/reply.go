package model

import "encoding/json"

// chatCompletion is the subset of an OpenAI-style completion that ReplyText reads.
type chatCompletion struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ReplyText extracts data.choices[0].message.content. It reports false when
// any segment of that path is missing or has an unexpected type.
func ReplyText(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var cc chatCompletion
	if err := json.Unmarshal(data, &cc); err != nil {
		return "", false
	}
	if len(cc.Choices) == 0 {
		return "", false
	}
	msg := cc.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", false
	}
	return *msg.Content, true
}
