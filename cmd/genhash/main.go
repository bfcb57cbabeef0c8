// Command genhash prints the bcrypt hash stored for a password, for seeding
// users by hand.
//
//	go run ./cmd/genhash s3cret
package main

import (
	"fmt"
	"os"

	"possales/internal/service"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: genhash <password>")
		os.Exit(2)
	}
	h, err := service.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(h)
}
