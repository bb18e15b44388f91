package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRoomName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"#room", true},
		{"#room_name", true},
		{"#room-name", true},
		{"#R@0m", true},
		{"room", false},
		{"#room name", false},
		{"#room#name", false},
		{"#", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidRoomName(tt.name), "name=%q", tt.name)
	}
}
