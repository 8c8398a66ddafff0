// Package shortcode содержит правила проверки и генерации коротких кодов.
package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// MinLength и MaxLength ограничивают длину пользовательского кода
	MinLength = 3
	MaxLength = 30
	// GeneratedLength длина автоматически сгенерированного кода
	GeneratedLength = 6
	// Alphabet алфавит генератора (62 символа)
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Причины отказа, которые показываются пользователю без изменений
const (
	ReasonRequired           = "shortcode is required"
	ReasonLength             = "shortcode must be between 3 and 30 characters"
	ReasonFormat             = "shortcode may only contain lowercase letters, numbers and hyphens, and must start and end with a letter or number"
	ReasonConsecutiveHyphens = "shortcode cannot contain consecutive hyphens"
	ReasonReserved           = "shortcode is reserved"
)

// ErrInvalidShortcode возвращается (через errors.Is) при любой ошибке проверки кода
var ErrInvalidShortcode = errors.New("invalid shortcode")

var codePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// reservedWords совпадает с маршрутами приложения, поэтому код не может их перекрыть
var reservedWords = map[string]struct{}{
	"about":       {},
	"admin":       {},
	"analytics":   {},
	"api":         {},
	"app":         {},
	"assets":      {},
	"auth":        {},
	"billing":     {},
	"dashboard":   {},
	"docs":        {},
	"favicon.ico": {},
	"health":      {},
	"help":        {},
	"login":       {},
	"logout":      {},
	"ping":        {},
	"pricing":     {},
	"privacy":     {},
	"qr":          {},
	"register":    {},
	"robots.txt":  {},
	"settings":    {},
	"signin":      {},
	"signup":      {},
	"sitemap.xml": {},
	"static":      {},
	"terms":       {},
}

// ValidationError описывает конкретную причину отказа
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is позволяет сравнивать ошибку с ErrInvalidShortcode
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidShortcode
}

// IsReserved сообщает, зарезервировано ли слово за маршрутами приложения
func IsReserved(word string) bool {
	_, ok := reservedWords[strings.ToLower(word)]
	return ok
}

// Normalize приводит пользовательский код к каноническому виду
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Validate проверяет пользовательский код. Срабатывает первое нарушенное правило.
func Validate(code string) error {
	switch {
	case code == "":
		return &ValidationError{Reason: ReasonRequired}
	case len(code) < MinLength || len(code) > MaxLength:
		return &ValidationError{Reason: ReasonLength}
	case !codePattern.MatchString(code):
		return &ValidationError{Reason: ReasonFormat}
	case strings.Contains(code, "--"):
		return &ValidationError{Reason: ReasonConsecutiveHyphens}
	case IsReserved(code):
		return &ValidationError{Reason: ReasonReserved}
	}
	return nil
}

// Generator генерирует случайные коды фиксированной длины
type Generator struct {
	random io.Reader
	length int
}

// NewGenerator создаёт генератор на основе crypto/rand
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader, length: GeneratedLength}
}

// NewGeneratorWithSource создаёт генератор с заданным источником случайности
func NewGeneratorWithSource(random io.Reader, length int) *Generator {
	return &Generator{random: random, length: length}
}

// Generate возвращает новый случайный код
func (g *Generator) Generate() (string, error) {
	// 62*4 = 248, байты не меньше 248 отбрасываются, чтобы не было смещения распределения
	const limit = byte(len(Alphabet) * 4)

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}
