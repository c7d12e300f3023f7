package naming

import (
	"strings"
	"testing"
)

func TestValidateWorkspaceName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Space Race", false},
		{"game_1.v2-final", false},
		{"", true},
		{"-leading", true},
		{"bad/slash", true},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("a", 64), true},
	}
	for _, tt := range tests {
		err := ValidateWorkspaceName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateWorkspaceName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
