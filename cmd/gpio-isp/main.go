// Command gpio-isp talks to an AVR target's serial programming interface
// over three bit-banged GPIO lines.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openController).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
