package main

import (
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/zurustar/holokeys/pkg/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// MIDI入力ドライバ（開けない場合は入力なしで続行）
	var drv drivers.Driver
	if rt, err := rtmididrv.New(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: MIDI input unavailable: %v\n", err)
	} else {
		drv = rt
		defer rt.Close()
	}

	return app.New(drv).Run(args)
}
