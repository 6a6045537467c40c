// Package main provides localization for the gopseek CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Backend":       "バックエンド",
		"Output":        "出力先",
		"Contact Sheet": "コンタクトシート",
		"Logging":       "ログ",

		// Root command
		"Frame-accurate random access into long-GOP video": "ロングGOP動画へのフレーム単位ランダムアクセス",
		"gopseek indexes a video, validates that it is seekable, and decodes individual frames or frame ranges with a GOP cache.": "gopseekは動画を索引化してシーク可能か検証し、GOPキャッシュを使って個々のフレームやフレーム範囲をデコードします。",
		"Usage": "使い方",

		// Global flags
		"YAML configuration file":                             "YAML設定ファイル",
		"Decoding backend (auto, mp4, libav)":                 "デコードバックエンド（auto, mp4, libav）",
		"Path to the ffmpeg executable":                       "ffmpeg実行ファイルのパス",
		"Pixel layout (auto, gray, rgb)":                      "ピクセル形式（auto, gray, rgb）",
		"Directory for output files without an explicit path": "出力パス未指定時の出力ディレクトリ",
		"Log level (debug, info, warn, error)":                "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                             "全てのログ出力を抑制",

		// Commands
		"Show stream parameters and frame index statistics":        "ストリームのパラメータとフレーム索引の統計を表示",
		"Decode every frame and report cache and decoder activity": "全フレームをデコードしてキャッシュとデコーダーの動作を報告",
		"Write the report to a Markdown file":                      "レポートをMarkdownファイルに書き込む",
		"Dump the decode position of every frame":                  "全フレームのデコード位置を出力",
		"List keyframes only":                                      "キーフレームのみを表示",
		"Export one decoded frame as PNG or JPEG":                  "デコードした1フレームをPNGまたはJPEGで出力",
		"Output image path (.png, .jpg)":                           "出力画像パス（.png, .jpg）",
		"JPEG quality (1-100)":                                     "JPEG品質（1-100）",
		"Dump a range of decoded frames as raw pixels":             "デコードしたフレーム範囲を生ピクセルで出力",
		"Output raw file path":                                     "出力RAWファイルパス",
		"Decode at most this many frames per request (0 = whole range)": "1回の要求でデコードする最大フレーム数（0 = 範囲全体）",
		"Render a contact sheet of evenly spaced frames":           "等間隔のフレームでコンタクトシートを描画",
		"Output PNG path":                                          "出力PNGパス",
		"Number of thumbnails":                                     "サムネイル数",
		"Use keyframes instead of evenly spaced frames":            "等間隔のフレームの代わりにキーフレームを使用",
		"Number of columns":                                        "カラム数",
		"Thumbnail width in pixels":                                "サムネイルの幅（ピクセル）",
		"Background color (hex, e.g., #1a1a2e)":                    "背景色（16進数、例: #1a1a2e）",
		"Do not print frame numbers":                               "フレーム番号を表示しない",

		// Version command
		"Show version information": "バージョン情報を表示",
		"gopseek version %s":       "gopseek バージョン %s",

		// Report content
		"Video Report":      "動画レポート",
		"File":              "ファイル",
		"Path":              "パス",
		"Size":              "サイズ",
		"Stream":            "ストリーム",
		"Codec":             "コーデック",
		"Dimensions":        "解像度",
		"Time Base":         "タイムベース",
		"Frame Rate":        "フレームレート",
		"PTS Increment":     "PTS増分",
		"Decoder":           "デコーダー",
		"Pixel Layout":      "ピクセル形式",
		"Frame Index":       "フレーム索引",
		"Frames":            "フレーム数",
		"Packets":           "パケット数",
		"Keyframes":         "キーフレーム数",
		"GOP Size":          "GOPサイズ（最小 / 平均 / 最大）",
		"Decode Activity":   "デコード動作",
		"Cache Hits":        "キャッシュヒット",
		"Cache Misses":      "キャッシュミス",
		"Decode Passes":     "デコードパス数",
		"Seeks":             "シーク回数",
		"Seek Fallbacks":    "先頭からのデコード回数",
		"Packets Submitted": "投入パケット数",
		"Pictures Decoded":  "デコードピクチャ数",
		"Pictures Captured": "取得ピクチャ数",
		"Timing":            "所要時間",
		"Open":              "オープン",
		"Read":              "読み出し",
		"Metadata":          "メタデータ",
		"Item":              "項目",
		"Value":             "値",
		"Generated at":      "生成日時",
	})
}
