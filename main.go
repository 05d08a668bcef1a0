package main

import (
	"log"

	"ticket-escrow/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
