package room

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    Inbound
		wantErr error
	}{
		{"chat", `{"type":"chat","displayName":"Alice","message":"hi"}`, Chat{DisplayName: "Alice", Message: "hi"}, nil},
		{"chat text field", `{"type":"chat","displayName":"Alice","text":"hey"}`, Chat{DisplayName: "Alice", Message: "hey"}, nil},
		{"end", `{"type":"end"}`, End{}, nil},
		{"bare password", `{"password":"s3cr3t!"}`, Password{Password: "s3cr3t!"}, nil},
		{"typed password", `{"type":"password","password":""}`, Password{Password: ""}, nil},
		{"password without field", `{"type":"password"}`, nil, ErrMalformed},
		{"unknown", `{"type":"end_meeting"}`, nil, ErrUnknownType},
		{"untyped", `{"message":"hi"}`, nil, ErrUnknownType},
		{"not json", `hello`, nil, ErrMalformed},
		{"array", `[1,2]`, nil, ErrMalformed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tc.in))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	var chat map[string]any
	if err := json.Unmarshal(ChatFrame("Alice", "hi"), &chat); err != nil {
		t.Fatal(err)
	}
	if chat["type"] != "chat" || chat["name"] != "Alice" || chat["message"] != "hi" {
		t.Errorf("chat frame = %v", chat)
	}
	if _, ok := chat["redirect"]; ok {
		t.Error("chat frame should not carry redirect")
	}

	var ended map[string]any
	if err := json.Unmarshal(EndedFrame(), &ended); err != nil {
		t.Fatal(err)
	}
	if ended["type"] != "ended" || ended["redirect"] != true {
		t.Errorf("ended frame = %v", ended)
	}

	var left map[string]any
	_ = json.Unmarshal(UserLeftFrame("Bob"), &left)
	if left["type"] != "userLeft" || left["name"] != "Bob" {
		t.Errorf("userLeft frame = %v", left)
	}
}
