// Package credential генерирует EA-токены фиксированной длины.
//
// Токен состоит из заглавных латинских букв и цифр и берётся из
// криптографически стойкого источника, предсказуемость токена недопустима.
package credential

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// Alphabet допустимые символы токена.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// DefaultLength длина токена по умолчанию.
	DefaultLength = 8
	// MinLength и MaxLength допустимые границы длины. MaxLength ограничена шириной колонки ea_tokens.token.
	MinLength = 6
	MaxLength = 32
)

// Generator выдаёт новые токены.
type Generator struct {
	length  int
	entropy io.Reader
}

// New создаёт генератор токенов длины length. При length <= 0 используется DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length, entropy: rand.Reader}
}

// Generate возвращает новый токен.
func (g *Generator) Generate() (string, error) {
	const op = "credential.Generate"
	limit := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(g.entropy, limit)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
