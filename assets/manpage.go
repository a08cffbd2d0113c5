//go:build ignore

// Generates the keep-git-in-sync(8) manpage: go run assets/manpage.go
package main

import (
	"compress/gzip"
	"log"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/silvadanilo/keep-git-in-sync/cmd"
)

func main() {
	header := &doc.GenManHeader{
		Title:   "KEEP-GIT-IN-SYNC",
		Section: "8",
		Source:  "keep-git-in-sync",
		Manual:  "Git working trees auto-sync daemon",
	}

	f, err := os.Create("keep-git-in-sync.8.gz")
	if err != nil {
		log.Fatal(err)
	}

	zw := gzip.NewWriter(f)

	if err = doc.GenMan(cmd.RootCmd, header, zw); err != nil {
		log.Fatal(err)
	}

	if err = zw.Close(); err != nil {
		log.Fatal(err)
	}

	if err = f.Close(); err != nil {
		log.Fatal(err)
	}
}
