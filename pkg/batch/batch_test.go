package batch

import "testing"

func TestIsNull(t *testing.T) {
	tests := []struct {
		name string
		page Page
		want bool
	}{
		{name: "nil", page: nil, want: true},
		{name: "empty", page: Page{}, want: true},
		{name: "null literal", page: Page(`null`), want: true},
		{name: "padded null", page: Page(" null\n"), want: true},
		{name: "object", page: Page(`{"a":1}`), want: false},
		{name: "empty array", page: Page(`[]`), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNull(tt.page); got != tt.want {
				t.Errorf("IsNull(%q) = %v, want %v", tt.page, got, tt.want)
			}
		})
	}
}

func TestCountNull(t *testing.T) {
	pages := []Page{nil, Page(`{}`), Page(`null`), Page(`[1]`)}
	if got := CountNull(pages); got != 2 {
		t.Errorf("CountNull() = %d, want 2", got)
	}
}

func TestBatch_Validate(t *testing.T) {
	tests := []struct {
		name    string
		batch   Batch
		wantErr bool
	}{
		{name: "empty", batch: Batch{}},
		{name: "valid", batch: Batch{"https://api.opensea.io/api/v1/assets?limit=50", "http://localhost:8080/x"}},
		{name: "duplicates allowed", batch: Batch{"https://a.example/x", "https://a.example/x"}},
		{name: "relative", batch: Batch{"/api/v1/assets"}, wantErr: true},
		{name: "ftp", batch: Batch{"ftp://example.com/file"}, wantErr: true},
		{name: "garbage", batch: Batch{"http://[::1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

