// Команда hash-password печатает bcrypt-хеш пароля для секции clients конфига.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/magabrotheeeer/ea-access/internal/lib/password"
)

func main() {
	raw := flag.String("password", "", "password of the API client")
	flag.Parse()

	if *raw == "" {
		fmt.Fprintln(os.Stderr, "usage: hash-password -password <secret>")
		os.Exit(2)
	}
	hash, err := password.Hash(*raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
