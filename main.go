package main

import (
	"fmt"
	"os"

	"github.com/silvadanilo/keep-git-in-sync/cmd"
)

var privateExitHandler = os.Exit

// ExitWrapper allow unit tests on main() exit values
func ExitWrapper(exit int) {
	privateExitHandler(exit)
}

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Printf("%+v\n", err)
		ExitWrapper(1)
	}
}
