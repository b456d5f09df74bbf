package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session level messages (info)
		"Starting %s session for %s":            "%s セッションを開始します: %s",
		"Playing %s track %dx%d with %s shader": "%s トラック %dx%d を %s シェーダーで再生中",
		"Recording to %s":                       "%s に録画中",
		"Capture duration of %s elapsed":        "キャプチャ時間 %s が経過しました",
		"Playback ended":                        "再生が終了しました",
		"Session completed in %s":               "セッションが %s で完了しました",
		"Session failed: %v":                    "セッションが失敗しました: %v",
		"Teardown failed: %v":                   "後片付けに失敗しました: %v",
		"Draining renderer failed: %v":          "レンダラーの排出に失敗しました: %v",

		// Frame source
		"Prepared %s: track %d, %s %dx%d":          "%s を準備しました: トラック %d, %s %dx%d",
		"Play from %s":                             "%s から再生",
		"Seeking to %d ms":                         "%d ms へシーク中",
		"Seek reached frame at %d us":              "%d us のフレームにシークしました",
		"Flushed decoder, dropped %d stale events": "デコーダーをフラッシュし、古いイベント %d 件を破棄しました",
		"Output format changed to %dx%d":           "出力フォーマットが %dx%d に変更されました",
		"Queued end of stream":                     "ストリーム終端をキューに入れました",
		"Reached end of stream":                    "ストリームの終端に達しました",
		"Playback failed: %v":                      "再生に失敗しました: %v",
		"Released":                                 "解放しました",

		// Texture bridge
		"Latched frame at %d ns": "%d ns のフレームを取り込みました",

		// Renderer
		"Renderer started: R%dG%dB%dA%d, HDR %t": "レンダラーを開始しました: R%dG%dB%dA%d, HDR %t",
		"Attached render target %dx%d":           "レンダーターゲット %dx%d を接続しました",
		"Skipped draw":                           "描画をスキップしました",
		"Draw failed: %v":                        "描画に失敗しました: %v",
		"Renderer stopped after %d draws":        "%d 回の描画後にレンダラーを停止しました",

		// Container and codecs
		"Container opened with %d tracks":            "%d トラックのコンテナを開きました",
		"Decoder configured: %s %dx%d":               "デコーダーを設定しました: %s %dx%d",
		"Decoder process failed: %v":                 "デコーダープロセスが失敗しました: %v",
		"Encoder started: %dx%d at %d fps, %d bps":   "エンコーダーを開始しました: %dx%d, %d fps, %d bps",
		"Encoder produced %d pictures for %d frames": "エンコーダーが %d ピクチャを出力しました (%d フレーム中)",
		"Recorded %d frames to %s (%d dropped)":      "%d フレームを %s に記録しました (%d 破棄)",

		// Preview window
		"Saved preview frame %d to %s": "プレビューフレーム %d を %s に保存しました",
	})
}
