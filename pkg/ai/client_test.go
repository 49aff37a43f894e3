package ai

import "testing"

func TestNewOpenAIClientBaseURL(t *testing.T) {
	cases := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty falls back to public endpoint", "", defaultOpenAIBaseURL},
		{"whitespace falls back to public endpoint", "   ", defaultOpenAIBaseURL},
		{"trailing slash trimmed", "http://localhost:8080/v1/", "http://localhost:8080/v1"},
		{"explicit value kept", "https://proxy.internal/v1", "https://proxy.internal/v1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewOpenAIClient(tc.baseURL, "key", "model")
			if client.baseURL != tc.want {
				t.Fatalf("baseURL = %q, want %q", client.baseURL, tc.want)
			}
		})
	}
}
