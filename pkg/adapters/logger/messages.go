package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session
		"Starting session %s":                                               "セッション %s を開始します",
		"Session %s cannot start: %v":                                       "セッション %s を開始できません: %v",
		"Could not load chunk history: %v":                                  "チャンク履歴を読み込めませんでした: %v",
		"Loaded %d chunks of history":                                       "履歴から %d チャンクを読み込みました",
		"Quality multiplier clamped to %.3f after %s":                       "%[2]s の後、品質係数を %.3[1]f に制限しました",
		"Session %s recording with %s (%s), target %d bytes per %s segment": "セッション %s: %s (%s) で録画中、%[5]s セグメントあたり目標 %[4]d バイト",
		"Session %s stopped: %d finalized, %d failed, %d frames dropped":    "セッション %s 停止: 確定 %d, 失敗 %d, ドロップ %d フレーム",
		"Interrupted, shutting down...":                                     "中断されました。シャットダウン中...",

		// Codec selection
		"Codec candidate %s unavailable: %v":               "コーデック候補 %s は利用できません: %v",
		"Preferred codecs unavailable, falling back to %s": "優先コーデックが利用できないため %s にフォールバックします",
		"Selected codec %s (%s, %s)":                       "コーデック %s (%s, %s) を選択しました",

		// Engine
		"Segment %s opened (multiplier %.3f, target %d bytes)": "セグメント %s を開きました (係数 %.3f, 目標 %d バイト)",
		"Segment %s aborted on close":                          "終了時にセグメント %s を中断しました",
		"Frame at %s dropped: encoder busy":                    "%s のフレームをドロップしました: エンコーダーが処理中",
		"Frame rejected: %v":                                   "フレームを拒否しました: %v",
		"Failed to remove partial file %s: %v":                 "不完全なファイル %s の削除に失敗しました: %v",

		// Segment lifecycle
		"Segment %s finalized: %d bytes, %d frames, target %d, multiplier %.3f": "セグメント %s 確定: %d バイト, %d フレーム, 目標 %d, 係数 %.3f",
		"Segment %s failed after %d frames: %v":                                 "セグメント %s は %d フレーム後に失敗しました: %v",
		"Segment %s skipped: no frames":                                         "セグメント %s をスキップしました: フレームなし",
		"Segment %s open with multiplier %.3f":                                  "セグメント %s を係数 %.3f で開きました",
		"Not opening a segment: %v":                                             "セグメントを開きません: %v",
		"Failed to open segment %s: %v":                                         "セグメント %s を開けませんでした: %v",
		"Rotation could not open a new segment: %v":                             "ローテーションで新しいセグメントを開けませんでした: %v",
		"Segment controller stopped after %d segments":                          "%d セグメントの後にセグメント制御を停止しました",

		// Quality control
		"Quality %s for %s: deviation %+.3f, multiplier %.3f -> %.3f":          "品質 %s (%s): 偏差 %+.3f, 係数 %.3f -> %.3f",
		"Quality hold for %s: deviation %+.3f within thresholds (+%.2f/-%.2f)": "品質維持 (%s): 偏差 %+.3f は閾値内 (+%.2f/-%.2f)",
		"Quality multiplier clamped to [%.2f, %.2f]":                           "品質係数を [%.2f, %.2f] に制限しました",

		// Metadata store
		"Persisting metadata failed, continuing: %v": "メタデータの保存に失敗しましたが続行します: %v",
		"Store %s failed for %s, retrying in %v: %v": "%[2]s の %[1]s に失敗しました。%[3]v 後に再試行します: %[4]v",
		"Store %s succeeded on retry %d for %s":      "%[3]s の %[1]s は %[2]d 回目の再試行で成功しました",
		"Failed to open metadata store %s: %v":       "メタデータストア %s を開けませんでした: %v",
		"Metadata store fell back to %s":             "メタデータストアを %s にフォールバックしました",

		// Status server
		"Status server listening on %s": "ステータスサーバーが %s で待機中",

		// Commands
		"Recording to %s with a %s daily budget": "%s に録画中 (1日の予算 %s)",
		"Failed to write summary: %v":            "サマリーの書き込みに失敗しました: %v",
		"Status server stopped: %v":              "ステータスサーバーが停止しました: %v",
		"Summary saved to %s":                    "サマリーを %s に保存しました",
		"Simulated %d segments of %s":            "%[2]s のセグメントを %[1]d 個シミュレートしました",
	})
}
