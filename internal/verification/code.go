// Package verification はメールアドレス検証コードの生成と有効期限を提供する。
package verification

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// CodeTTL は検証コードの有効期間。
const CodeTTL = 10 * time.Minute

const (
	minCode = 100000
	maxCode = 999999
)

// Generator は検証コードの生成インターフェース。
type Generator interface {
	Generate() string
}

// RandomGenerator は100000〜999999の一様乱数から6桁の検証コードを生成する。
type RandomGenerator struct{}

// NewRandomGenerator はRandomGeneratorを生成する。
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// Generate は6桁の10進数文字列を返す。
func (g *RandomGenerator) Generate() string {
	return strconv.Itoa(minCode + rand.IntN(maxCode-minCode+1))
}

// ExpiresAt は発行時刻から検証コードの有効期限を算出する。
func ExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.Add(CodeTTL)
}

// NewCode はコードと有効期限の組を生成する。
func NewCode(gen Generator, now time.Time) (string, time.Time) {
	return gen.Generate(), ExpiresAt(now)
}

var _ Generator = (*RandomGenerator)(nil)
