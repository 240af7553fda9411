package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urukhq/whisperd/internal/core/job"
)

func TestBuildUpdateQuery(t *testing.T) {
	t.Run("ステータスを書く更新は終端行を除外する", func(t *testing.T) {
		succeeded := job.StatusSucceeded
		finished := time.Now().UTC()
		query, args := buildUpdateQuery("task-1", job.Update{
			Status:     &succeeded,
			FinishedAt: &finished,
		})

		require.NotEmpty(t, query)
		assert.Contains(t, query, "status NOT IN ('succeeded', 'failed', 'canceled')")
		assert.Equal(t, "task-1", args[0])
	})

	t.Run("取り消し済みの行へはワーカーの終端書き込みが届かない", func(t *testing.T) {
		// Service.Cancel が canceled をコミットした後に、割り込みに失敗した
		// ワーカーが succeeded / failed を書こうとするケース。ガード付き
		// WHERE 句がその行を更新対象から外す。
		for _, status := range []job.Status{job.StatusSucceeded, job.StatusFailed} {
			s := status
			query, _ := buildUpdateQuery("task-2", job.Update{Status: &s})
			assert.Contains(t, query, "AND status NOT IN", "status: %s", status)
		}
	})

	t.Run("ステータスを含まない更新はガードしない", func(t *testing.T) {
		lang := "en"
		query, args := buildUpdateQuery("task-3", job.Update{Language: &lang})

		assert.NotContains(t, query, "status NOT IN")
		assert.Contains(t, query, "language = $2")
		assert.Equal(t, []any{"task-3", "en"}, args)
	})

	t.Run("設定されたフィールドだけが SET 句に並ぶ", func(t *testing.T) {
		running := job.StatusRunning
		started := time.Now().UTC()
		query, args := buildUpdateQuery("task-4", job.Update{
			Status:    &running,
			StartedAt: &started,
		})

		assert.Contains(t, query, "status = $2")
		assert.Contains(t, query, "started_at = $3")
		assert.NotContains(t, query, "finished_at")
		assert.NotContains(t, query, "transcript_json")
		assert.Len(t, args, 3)
	})

	t.Run("ClearError は error_message を NULL にする", func(t *testing.T) {
		query, _ := buildUpdateQuery("task-5", job.Update{ClearError: true})
		assert.Contains(t, query, "error_message = NULL")
	})

	t.Run("更新対象が無ければ空のクエリになる", func(t *testing.T) {
		query, args := buildUpdateQuery("task-6", job.Update{})
		assert.Empty(t, query)
		assert.Nil(t, args)
	})
}
