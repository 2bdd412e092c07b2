package security

import "testing"

func TestText_StripsTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "Weekend drift meet", "Weekend drift meet"},
		{"強調タグ", "<b>Drift</b> king", "Drift king"},
		{"scriptは中身ごと除去", "<script>alert(1)</script>Hi", "Hi"},
		{"イベント属性", `<img src=x onerror="alert(1)">Tokyo`, "Tokyo"},
		{"アンパサンドを保持", "Tom & Jerry", "Tom & Jerry"},
		{"比較記号を保持", "0-60 < 4s", "0-60 < 4s"},
		{"前後の空白", "  driver1 \n", "driver1"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// エスケープされたタグは復元後に除去される
func TestText_EscapedTagsAreRemoved(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Text("&lt;script&gt;alert(1)&lt;/script&gt;JDM")
	if got != "JDM" {
		t.Errorf("Text = %q, want %q", got, "JDM")
	}
}

func TestText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	inputs := []string{
		"<p>Built <em>not</em> bought</p>",
		"R34 &amp; S15",
		"<a href=\"javascript:alert(1)\">click</a>",
	}
	for _, in := range inputs {
		once := s.Text(in)
		if twice := s.Text(once); twice != once {
			t.Errorf("Text not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestImageURL(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"https://images.example.com/car.jpg", "https://images.example.com/car.jpg"},
		{" https://images.example.com/car.jpg ", "https://images.example.com/car.jpg"},
		{"http://images.example.com/car.jpg", ""},
		{"javascript:alert(1)", ""},
		{"data:image/png;base64,AAAA", ""},
		{"/relative/car.jpg", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.ImageURL(tt.input); got != tt.want {
			t.Errorf("ImageURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
