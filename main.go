package main

import (
	"log"

	"github.com/battswap/boothd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
