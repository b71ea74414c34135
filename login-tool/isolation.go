//go:build linux

package main

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// harden keeps decrypted keys out of core dumps and swap. Failures are
// logged; the tool still runs unhardened.
func harden() {
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0}); err != nil {
		log.Warn().Err(err).Msg("Failed to disable core dumps")
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to set no_new_privs")
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		// usually RLIMIT_MEMLOCK
		log.Warn().Err(err).Msg("Failed to lock memory (mlockall)")
		return
	}
	log.Debug().Msg("Process hardened")
}
