package transcript

import "sort"

// Word は単語単位のタイムスタンプ情報です。
// アライメント未実行のエンジン出力では Start/End/Confidence は nil になります。
type Word struct {
	Word       string   `json:"word"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Confidence *float64 `json:"confidence"`
}

// Segment は認識された発話区間です。
// 話者のターンが重なる場合があるため、区間同士の非重複は保証しません。
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Words   []Word  `json:"words"`
	Speaker string  `json:"speaker,omitempty"`
}

// ModelInfo は結果を生成したモデルのメタデータです。
// Alignment / Diarization は該当エンハンスメントが実際に適用されたかを示します。
type ModelInfo struct {
	Name        string `json:"name"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
	Alignment   bool   `json:"alignment"`
	Diarization bool   `json:"diarization"`
}

// Source は音声の取得元です。
type Source struct {
	AudioURL string `json:"audio_url"`
}

// Result は文字起こし結果の完全な契約です。
// ジョブ成功時に transcript_json としてそのまま永続化されます。
type Result struct {
	Language        string         `json:"language"`
	DurationSec     *float64       `json:"duration_sec"`
	Segments        []Segment      `json:"segments"`
	Model           ModelInfo      `json:"model"`
	RequestMetadata map[string]any `json:"request_metadata"`
	Source          Source         `json:"source"`
}

// SortSegments は区間を開始時刻の昇順に整列します。
// エンジン出力は通常整列済みですが、時系列の単調性は契約として保証します。
func (r *Result) SortSegments() {
	sort.SliceStable(r.Segments, func(i, j int) bool {
		return r.Segments[i].Start < r.Segments[j].Start
	})
}

// Duration はジョブに記録する音声長を導出します。
// コーデックが報告する長さではなく、最後の認識区間の終了時刻を採用します。
// 区間が空の場合のみエンジン報告値にフォールバックします。
func (r *Result) Duration() float64 {
	if len(r.Segments) > 0 {
		return r.Segments[len(r.Segments)-1].End
	}
	if r.DurationSec != nil {
		return *r.DurationSec
	}
	return 0
}
