package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/cardsuite/internal/cardsuitecli"
)

func main() {
	if err := cardsuitecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, cardsuitecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			cardsuitecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
