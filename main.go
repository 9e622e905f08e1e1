package main

import (
	"log"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Println("[MAIN] [ERROR]", err)
		os.Exit(1)
	}
}
