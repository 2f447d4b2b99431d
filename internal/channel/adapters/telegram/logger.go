package telegram

import (
	"fmt"
	"log/slog"
)

// slogBotLogger routes tgbotapi's package logger into slog.
type slogBotLogger struct {
	log *slog.Logger
}

func newSlogBotLogger(log *slog.Logger) *slogBotLogger {
	return &slogBotLogger{log: log.With(slog.String("source", "tgbotapi"))}
}

func (s *slogBotLogger) Println(v ...any) {
	s.log.Warn("telegram sdk", slog.String("detail", fmt.Sprint(v...)))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.log.Warn("telegram sdk", slog.String("detail", fmt.Sprintf(format, v...)))
}
