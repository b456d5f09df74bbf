// Package main provides localization for the glhdr CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Runtime messages
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",
		"Output saved to %s":            "出力を %s に保存しました",
		"Preview frames saved to %s":    "プレビューフレームを %s に保存しました",
		"Summary saved to %s":           "サマリーを %s に保存しました",
		"Failed to write summary: %v":   "サマリーの書き込みに失敗しました: %v",

		// Version command
		"glhdr version %s": "glhdr バージョン %s",

		// Probe command
		"%s: %d tracks":                               "%s: %d トラック",
		"  #%d %s %dx%d, %d-bit, %s":                  "  #%d %s %dx%d, %dビット, %s",
		"  #%d %s, %s":                                "  #%d %s, %s",
		"Selected track %d (HDR %t, colour %d/%d/%d)": "選択トラック %d (HDR %t, 色情報 %d/%d/%d)",

		// Summary content
		"Playback Summary": "再生サマリー",
		"Generated":        "生成日時",
		"Generated by":     "生成:",
		"Item":             "項目",
		"Value":            "値",
		"Yes":              "はい",
		"No":               "いいえ",

		// Source section
		"Source":         "入力",
		"Input":          "入力ファイル",
		"Codec":          "コーデック",
		"Resolution":     "解像度",
		"Bit Depth":      "ビット深度",
		"Colour":         "色空間",
		"Track Duration": "トラック長",

		// Playback section
		"Playback":         "再生",
		"Mode":             "モード",
		"Shader":           "シェーダー",
		"Frames Decoded":   "デコードフレーム数",
		"Frames Dropped":   "破棄フレーム数",
		"Frames Presented": "表示フレーム数",
		"Reached End":      "終端到達",
		"Elapsed":          "経過時間",

		// Capture section
		"Capture Output": "キャプチャ出力",
		"File":           "ファイル",
		"Frame Rate":     "フレームレート",
		"Bitrate":        "ビットレート",
		"Dynamic Range":  "ダイナミックレンジ",
		"Frames Encoded": "エンコードフレーム数",
		"File Size":      "ファイルサイズ",
	})
}
