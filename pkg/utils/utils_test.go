package utils

import (
	"strings"
	"testing"
)

func TestComputeSHA256(t *testing.T) {
	got := ComputeSHA256([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Errorf("ComputeSHA256() = %v, want %v", got, want)
	}
}

func TestComputeSHA256FromReader(t *testing.T) {
	got, err := ComputeSHA256FromReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("ComputeSHA256FromReader() error = %v", err)
	}

	if got != ComputeSHA256([]byte("hello world")) {
		t.Errorf("ComputeSHA256FromReader() = %v, want digest of same bytes", got)
	}
}

func TestDigestEqual(t *testing.T) {
	lower := ComputeSHA256([]byte("payload"))

	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical",
			a:    lower,
			b:    lower,
			want: true,
		},
		{
			name: "uppercase declared digest",
			a:    lower,
			b:    strings.ToUpper(lower),
			want: true,
		},
		{
			name: "prefixed digest",
			a:    "sha256:" + lower,
			b:    lower,
			want: true,
		},
		{
			name: "different digest",
			a:    lower,
			b:    ComputeSHA256([]byte("other")),
			want: false,
		},
		{
			name: "empty",
			a:    lower,
			b:    "",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DigestEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("DigestEqual() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHexDigest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid lowercase", ComputeSHA256([]byte("x")), true},
		{"valid uppercase", strings.ToUpper(ComputeSHA256([]byte("x"))), true},
		{"too short", "abcd", false},
		{"not hex", strings.Repeat("z", 64), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHexDigest(tt.input); got != tt.want {
				t.Errorf("IsHexDigest(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain name",
			input: "uploaded_test.bin",
			want:  "uploaded_test.bin",
		},
		{
			name:  "strips directories",
			input: "/tmp/data/report.pdf",
			want:  "report.pdf",
		},
		{
			name:  "path traversal",
			input: "../../etc/passwd",
			want:  "passwd",
		},
		{
			name:  "windows separators",
			input: `C:\Users\me\file.txt`,
			want:  "file.txt",
		},
		{
			name:  "control characters removed",
			input: "bad\x00name\n.txt",
			want:  "badname.txt",
		},
		{
			name:  "dot dot only",
			input: "..",
			want:  "",
		},
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{
			name:  "bytes",
			bytes: 512,
			want:  "512 B",
		},
		{
			name:  "kilobytes",
			bytes: 1536, // 1.5 KB
			want:  "1.5 KB",
		},
		{
			name:  "megabytes",
			bytes: 1048576, // 1 MB
			want:  "1.0 MB",
		},
		{
			name:  "just under a kilobyte",
			bytes: 1023,
			want:  "1023 B",
		},
		{
			name:  "gigabytes",
			bytes: 20 << 30,
			want:  "20.0 GB",
		},
		{
			name:  "zero bytes",
			bytes: 0,
			want:  "0 B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.want {
				t.Errorf("FormatBytes() = %v, want %v", got, tt.want)
			}
		})
	}
}
