package middleware

import (
	"io"

	"github.com/rs/zerolog"
)

func zerologTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.InfoLevel)
}
