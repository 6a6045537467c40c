package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Command level messages (info)
		"Output saved to %s":                       "出力を %s に保存しました",
		"Report saved to %s":                       "レポートを %s に保存しました",
		"Wrote %d frames of %dx%d %s to %s":        "%d フレーム (%dx%d %s) を %s に書き込みました",
		"Interrupted, shutting down...":            "中断されました。シャットダウン中...",
		"Rendering sheet of %d frames: %dx%d, %d columns": "%d フレームのコンタクトシートを描画中: %dx%d, %d カラム",

		// Backend selection
		"Selected backend %s for %s":               "%[2]s にバックエンド %[1]s を選択しました",
		"Selected backend %s for %s (%s)":          "%[2]s にバックエンド %[1]s を選択しました (%[3]s)",
		"libav backend failed, trying mp4: %v":     "libav バックエンドが失敗しました。mp4 を試します: %v",
		"Stream %d: %s %dx%d, time base %s, frame rate %s": "ストリーム %d: %s %dx%d, タイムベース %s, フレームレート %s",

		// Frame index
		"Counted %d video packets":                 "映像パケットを %d 個数えました",
		"Indexed %d frames, pts increment %d, %d keyframes": "%d フレームを索引化しました (PTS 増分 %d, キーフレーム %d 個)",

		// Decoding
		"Opened %s: %dx%d %s, %d frames, pts increment %d, decoder %s": "%s を開きました: %dx%d %s, %d フレーム, PTS 増分 %d, デコーダー %s",
		"Seeking to frame %d (dts %d)":             "フレーム %d へシーク中 (DTS %d)",
		"Seek to dts %d failed, decoding from the start: %v": "DTS %d へのシークに失敗しました。先頭からデコードします: %v",
		"Decoded frames %d-%d":                     "フレーム %d-%d をデコードしました",
		"Closed %s":                                "%s を閉じました",

		// Errors
		"Failed to write report: %s":               "レポートの書き込みに失敗しました: %s",
	})
}
