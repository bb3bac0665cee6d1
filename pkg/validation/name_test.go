package validation

import (
	"testing"
)

func TestValidateServiceName(t *testing.T) {
	tests := []struct {
		name    string
		service string
		wantErr bool
	}{
		// Valid names
		{"simple", "kaspad", false},
		{"single char", "k", false},
		{"with digit", "kaspad2", false},
		{"with hyphen", "kaspa-explorer", false},
		{"with underscore", "kaspa_rest_server", false},
		{"with dot", "node.mainnet", false},
		{"starts with digit", "9kaspad", false},

		// Invalid names - injection attempts
		{"empty", "", true},
		{"shell injection", "kaspad; rm -rf /", true},
		{"argument injection", "--privileged", true},
		{"path traversal", "../../etc", true},
		{"newline injection", "kaspad\n--detach", true},
		{"uppercase", "Kaspad", true},
		{"spaces", "kas pad", true},
		{"special chars", "kaspad@#$", true},
		{"too long", "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghijkl", true},
		{"starts with hyphen", "-kaspad", true},
		{"starts with dot", ".kaspad", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceName(tt.service)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServiceName(%q) error = %v, wantErr %v", tt.service, err, tt.wantErr)
			}
		})
	}
}

func TestValidateServiceNames(t *testing.T) {
	tests := []struct {
		name     string
		services []string
		wantErr  bool
	}{
		{"all valid", []string{"kaspad", "kaspa-explorer", "postgres"}, false},
		{"one invalid", []string{"kaspad", "bad name", "postgres"}, true},
		{"all invalid", []string{"Bad", "--flag"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceNames(tt.services)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServiceNames(%v) error = %v, wantErr %v", tt.services, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProfileID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"core", "core", false},
		{"hyphenated", "archive-node", false},
		{"multi hyphen", "kaspa-user-applications", false},
		{"empty", "", true},
		{"uppercase", "Core", true},
		{"flag injection", "--profile=evil", true},
		{"tag injection", `core,host=evil`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfileID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProfileID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeProfileID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"lowercase passthrough", "core", "core", false},
		{"uppercase normalized", "CORE", "core", false},
		{"mixed case", "Archive-Node", "archive-node", false},
		{"with spaces trimmed", "  mining  ", "mining", false},
		{"invalid rejected", "bad id!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeProfileID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeProfileID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeProfileID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
