package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowlist_Allowed(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		host     string
		want     bool
	}{
		{
			name:     "完全一致で許可される",
			patterns: []string{"audio.example.com"},
			host:     "audio.example.com",
			want:     true,
		},
		{
			name:     "大文字小文字を区別しない",
			patterns: []string{"Audio.Example.com"},
			host:     "audio.example.COM",
			want:     true,
		},
		{
			name:     "リストにないホストは拒否される",
			patterns: []string{"audio.example.com"},
			host:     "evil.example.net",
			want:     false,
		},
		{
			name:     "ワイルドカードはサブドメインに一致する",
			patterns: []string{"*.example.com"},
			host:     "cdn.example.com",
			want:     true,
		},
		{
			name:     "ワイルドカードは深いサブドメインにも一致する",
			patterns: []string{"*.example.com"},
			host:     "a.b.example.com",
			want:     true,
		},
		{
			name:     "ワイルドカードは裸のドメインには一致しない",
			patterns: []string{"*.example.com"},
			host:     "example.com",
			want:     false,
		},
		{
			name:     "ワイルドカードは似た名前のドメインには一致しない",
			patterns: []string{"*.example.com"},
			host:     "notexample.com",
			want:     false,
		},
		{
			name:     "空のリストはすべて拒否する",
			patterns: nil,
			host:     "audio.example.com",
			want:     false,
		},
		{
			name:     "空白だけのパターンは無視される",
			patterns: []string{"  ", "audio.example.com"},
			host:     "audio.example.com",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllowlist(tt.patterns)
			assert.Equal(t, tt.want, a.Allowed(tt.host))
		})
	}
}
