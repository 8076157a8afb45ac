package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// consoleTimeFormat はコンソール出力のタイムスタンプ形式。
const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatJSON はJSON形式の出力を表す。
const FormatJSON = "json"

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（trace/debug/info/warn/error）。空の場合はinfo。
	Level string
	// Format は出力形式（console または json）。
	Format string
	// NoColor はコンソール出力の色付けを無効にする。
	NoColor bool
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
}

// New は設定に従ってロガーを生成する。wがnilの場合は標準出力に書き込む。
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}

	out := w
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), FormatJSON) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: consoleTimeFormat,
			NoColor:    cfg.NoColor,
		}
	}

	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel はレベル文字列を解釈する。不正な値や空文字の場合はinfoを返す。
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Nop は何も出力しないロガーを返す。テストや任意依存の既定値として使う。
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
