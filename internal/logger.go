package internal

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
)

// DiscardLogger returns a logger that drops every entry.
func DiscardLogger() log.Interface {
	return &log.Logger{
		Handler: discard.Default,
		Level:   log.FatalLevel,
	}
}
