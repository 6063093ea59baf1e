package identity

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Ana", "Ana"},
		{"José", "Jose"},
		{"Muñoz", "Munoz"},
		{"Ángela Núñez", "Angela Nunez"},
		{"Jiří", "Jiri"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"María José", "maria jose"},
		{"garcia-lopez", "garcia lopez"},
		{"  LUIS   PÉREZ ", "luis perez"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizePersonName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNameMatches(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"María José García", "maria", true},
		{"María José García", "gar jos", true},
		{"María José García", "Garcia", true},
		{"María José García", "lopez", false},
		{"Luis", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.query, func(t *testing.T) {
			if got := nameMatches(tt.name, tt.query); got != tt.want {
				t.Errorf("nameMatches(%q, %q) = %v, want %v", tt.name, tt.query, got, tt.want)
			}
		})
	}
}
