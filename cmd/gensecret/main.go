package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const secretKeyBytesLen = 32

// Prints a random key suitable for the SECRET_KEY setting
func main() {
	b := make([]byte, secretKeyBytesLen)

	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
