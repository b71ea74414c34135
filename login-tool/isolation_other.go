//go:build !linux

package main

import (
	"runtime"

	"github.com/rs/zerolog/log"
)

func harden() {
	log.Warn().Str("os", runtime.GOOS).Msg("Process hardening only supported on Linux")
}
