package util

import (
	"math/rand"
	"strings"
	"time"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz")

func Randstring(n int) string {
	rand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

func LastNonEmptyLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	offset := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			offset = len(lines) - i
			break
		}
	}
	line := lines[len(lines)-offset]
	return line
}
