package types

import (
	"testing"
)

func TestSender_Valid(t *testing.T) {
	tests := []struct {
		name   string
		sender Sender
		want   bool
	}{
		{name: "user", sender: SenderUser, want: true},
		{name: "ai", sender: SenderAI, want: true},
		{name: "empty", sender: "", want: false},
		{name: "uppercase is not normalized", sender: "USER", want: false},
		{name: "unknown", sender: "system", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sender.Valid(); got != tt.want {
				t.Errorf("Sender(%q).Valid() = %v, want %v", tt.sender, got, tt.want)
			}
		})
	}
}
