// Package main provides localization for the screenrec CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration":      "設定",
		"Output":             "出力先",
		"Logging":            "ログ",
		"Capture":            "キャプチャ",
		"Budget and Quality": "予算と品質",

		// Root command
		"Record the screen within a daily storage budget":                                                                                 "1日のストレージ予算内で画面を録画",
		"screenrec compresses screen captures into fixed-length chunks and adapts quality so a day of recording fits its storage budget.": "screenrecは画面キャプチャを一定長のチャンクに圧縮し、1日の録画がストレージ予算に収まるよう品質を調整します。",
		"screenrec version %s":                                                                                                            "screenrec バージョン %s",
		"Error: %s":                                                                                                                       "エラー: %s",

		// Global flags
		"Path to the YAML configuration file":       "YAML設定ファイルのパス",
		"Environment files to load (default: .env)": "読み込む環境変数ファイル（デフォルト: .env）",
		"Log level (debug, info, warn, error)":      "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                   "全てのログ出力を抑制",

		// Shared flags
		"Directory for chunk files":                                      "チャンクファイルのディレクトリ",
		"Path to the metadata database":                                  "メタデータデータベースのパス",
		"Storage budget per day (e.g., 2GiB, 500MiB)":                    "1日あたりのストレージ予算（例: 2GiB, 500MiB）",
		"Hours of recording per day the budget is spread over":           "予算を配分する1日あたりの録画時間",
		"Quality mode (auto, low, medium, high, lossless)":               "品質モード（auto, low, medium, high, lossless）",
		"Chunk length (e.g., 15m)":                                       "チャンクの長さ（例: 15m）",
		"Frames captured per second":                                     "1秒あたりのキャプチャフレーム数",
		"Codec preference, most preferred first (hevc, h264, mjpeg)":     "コーデックの優先順位（hevc, h264, mjpeg）",
		"Write a session summary to this file (.md, .json or .json.zst)": "セッションサマリーをこのファイルに出力（.md, .json, .json.zst）",

		// Record command
		"Record the synthetic desktop into budgeted chunks":                                                               "合成デスクトップを予算内のチャンクに録画",
		"Capture frames, compress them into fixed-length chunks and adapt quality to the daily budget until interrupted.": "中断されるまでフレームをキャプチャし、一定長のチャンクに圧縮して1日の予算に合わせて品質を調整します。",
		"Address of the status server (e.g., 127.0.0.1:9180)":                                                             "ステータスサーバーのアドレス（例: 127.0.0.1:9180）",
		"Stop after this many frames (0 = until interrupted)":                                                             "このフレーム数で停止（0 = 中断まで）",
		"Stop after this long (0 = until interrupted)":                                                                    "この時間で停止（0 = 中断まで）",

		// Simulate command
		"Simulate recording days with a modelled encoder":                                                                                               "モデル化したエンコーダーで録画日をシミュレート",
		"Run the quality controller against a virtual encoder and clock to see how a budget converges. Nothing is written except the optional summary.": "仮想エンコーダーと仮想時計で品質制御を実行し、予算への収束を確認します。サマリー以外は書き込みません。",
		"Number of simulated days":                                                                                                                      "シミュレートする日数",
		"Content complexity relative to the base bitrate (1.0 = exact)":                                                                                 "基準ビットレートに対するコンテンツの複雑さ（1.0 = 一致）",
		"Relative per-frame size jitter":                                                                                                                "フレームごとのサイズの揺らぎ（相対値）",
		"Random seed of the jitter":                                                                                                                     "揺らぎの乱数シード",

		// Stats command
		"Show storage usage and quality trends":                                                                                "ストレージ使用量と品質の傾向を表示",
		"Read the metadata database and report usage over the retention window, the usage trend and recent quality decisions.": "メタデータデータベースを読み、保持期間の使用量、傾向、最近の品質判断を表示します。",
		"Number of recent quality decisions to show":                                                                           "表示する最近の品質判断の数",
		"Print the snapshot as JSON":                                                                                           "スナップショットをJSONで出力",
		"Window: %s - %s":                                                                                                      "期間: %s - %s",
		"Chunks: %d, total %s":                                                                                                 "チャンク: %d, 合計 %s",
		"Daily average: %s, trend %+.1f MiB/day":                                                                               "1日平均: %s, 傾向 %+.1f MiB/日",
		"Projected: %s of %s budget":                                                                                           "予測: %s (予算 %s)",
		"ALERT: projected usage exceeds the storage budget":                                                                    "警告: 予測使用量がストレージ予算を超えています",
		"Recent quality decisions:":                                                                                            "最近の品質判断:",

		// Report command
		"Write a recording report":                                                                                                                                 "録画レポートを出力",
		"Build a report from the metadata database, or re-render an exported JSON summary. The output format follows the file extension: .md, .json or .json.zst.": "メタデータデータベースからレポートを作成するか、出力済みのJSONサマリーを再描画します。出力形式は拡張子（.md, .json, .json.zst）で決まります。",
		"Only include chunks of this session":                                                                                                                      "このセッションのチャンクのみを含める",
		"Include chunks that ended within this period":                                                                                                             "この期間内に終了したチャンクを含める",
		"Render this JSON summary instead of reading the database":                                                                                                 "データベースの代わりにこのJSONサマリーを描画",
		"Write the report to this file instead of stdout":                                                                                                          "標準出力の代わりにこのファイルへ出力",

		// Inspect command
		"Show the codec and geometry of chunk files":                                    "チャンクファイルのコーデックとサイズを表示",
		"Parse MP4 chunk files and print the video codec, sample entry and frame size.": "MP4チャンクファイルを解析し、コーデック、サンプルエントリ、フレームサイズを表示します。",
		"At least one file argument is required":                                        "ファイル引数が1つ以上必要です",
		"%d of %d files could not be inspected":                                         "%[2]d 個中 %[1]d 個のファイルを解析できませんでした",

		// Codecs command
		"List encoder candidates and whether they work here":                                                                 "エンコーダー候補とこの環境での利用可否を表示",
		"Probe every configured encoder candidate in preference order. The first available one is what record would select.": "設定されたエンコーダー候補を優先順に検査します。最初に利用可能なものがrecordで選択されます。",
		"available":                                                                                                          "利用可能",
		"No encoder candidate is available":                                                                                  "利用可能なエンコーダー候補がありません",

		// Config command
		"Create, show or migrate the configuration file":             "設定ファイルの作成、表示、移行",
		"Write a configuration file with default values":             "デフォルト値で設定ファイルを作成",
		"Overwrite an existing file":                                 "既存のファイルを上書き",
		"Print the effective configuration":                          "有効な設定を表示",
		"Rewrite a configuration file at the current schema version": "設定ファイルを現在のスキーマバージョンで書き直す",
		"%s already exists (use --force to overwrite)":               "%s は既に存在します（上書きするには --force）",
		"Configuration written to %s":                                "設定を %s に書き込みました",
		"A configuration file path is required":                      "設定ファイルのパスが必要です",
		"Configuration migrated to schema version %d":                "設定をスキーマバージョン %d に移行しました",

		// Summary content
		"Recording Summary":                          "録画サマリー",
		"Session":                                    "セッション",
		"Session ID":                                 "セッションID",
		"Started":                                    "開始",
		"Duration":                                   "時間",
		"Encoding":                                   "エンコード",
		"Encoder":                                    "エンコーダー",
		"Fallback":                                   "フォールバック",
		"Preferred encoders unavailable":             "優先エンコーダーが利用できません",
		"Quality Mode":                               "品質モード",
		"Target per Chunk":                           "チャンクあたりの目標",
		"Base Bitrate":                               "基準ビットレート",
		"Segment Duration":                           "セグメント長",
		"Frame Rate":                                 "フレームレート",
		"Chunks":                                     "チャンク",
		"Total Size":                                 "合計サイズ",
		"Budget Usage":                               "予算使用率",
		"Compression Ratio":                          "圧縮率",
		"Frames":                                     "フレーム",
		"finalized":                                  "確定",
		"failed":                                     "失敗",
		"skipped":                                    "スキップ",
		"encoded":                                    "エンコード済み",
		"dropped":                                    "ドロップ",
		"rejected":                                   "拒否",
		"Quality Control":                            "品質制御",
		"Final Multiplier":                           "最終係数",
		"Range":                                      "範囲",
		"Decisions":                                  "判断",
		"decrease":                                   "引き下げ",
		"increase":                                   "引き上げ",
		"hold":                                       "維持",
		"Clamped":                                    "制限",
		"Storage":                                    "ストレージ",
		"Retained":                                   "保持中",
		"chunks":                                     "チャンク",
		"Daily Average":                              "1日平均",
		"Projected":                                  "予測",
		"Budget":                                     "予算",
		"Alert":                                      "警告",
		"Projected usage exceeds the storage budget": "予測使用量がストレージ予算を超えています",
		"Showing the last %d of %d chunks":           "%[2]d 個中最新の %[1]d 個のチャンクを表示",
		"Chunk":                                      "チャンク",
		"Status":                                     "状態",
		"Size":                                       "サイズ",
		"Target":                                     "目標",
		"Multiplier":                                 "係数",
		"Generated at":                               "生成日時",
	})
}
