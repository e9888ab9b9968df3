package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// fatalWithWait logs the error, waits on Windows and exits with status 1.
func fatalWithWait(format string, args ...interface{}) {
	log.Error().Msg(fmt.Sprintf(format, args...))
	waitOnWindows()
	os.Exit(1)
}
