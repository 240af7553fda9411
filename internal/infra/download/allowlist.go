package download

import "strings"

// Allowlist はダウンロード先ホストの許可リストです。完全一致のホスト名と
// "*.example.com" 形式のサフィックスパターンを受け付けます。
// 空のリストはすべて拒否するデフォルトデナイです。
type Allowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewAllowlist は新しい Allowlist を作成します。
func NewAllowlist(patterns []string) *Allowlist {
	a := &Allowlist{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(p, "*."); ok {
			a.suffixes = append(a.suffixes, "."+suffix)
			continue
		}
		a.exact[p] = struct{}{}
	}
	return a
}

// Allowed は指定ホストへのダウンロードを許可するか判定します。
// サフィックスパターンはサブドメインのみに一致し、裸のドメイン自体には
// 一致しません。
func (a *Allowlist) Allowed(host string) bool {
	host = strings.ToLower(host)
	if _, ok := a.exact[host]; ok {
		return true
	}
	for _, suffix := range a.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
