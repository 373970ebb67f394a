package nfekey

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// KeyLength é o tamanho da chave de acesso da NF-e
const KeyLength = 44

// NSULength é o tamanho do NSU exigido pelo distDFeInt
const NSULength = 15

var (
	ErrInvalidKey = errors.New("chave de acesso inválida")
	ErrInvalidNSU = errors.New("NSU inválido")
)

// OnlyDigits remove tudo que não for dígito
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FromID extrai os 44 dígitos da chave do atributo Id (ex: NFe3523...)
func FromID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "NFe")
	if IsKey(id) {
		return id
	}
	return ""
}

// IsKey indica se s tem exatamente 44 dígitos
func IsKey(s string) bool {
	if len(s) != KeyLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Validate verifica formato e dígito verificador (módulo 11) da chave
func Validate(key string) error {
	if !IsKey(key) {
		return fmt.Errorf("%w: deve ter exatamente %d dígitos", ErrInvalidKey, KeyLength)
	}
	if CheckDigit(key[:43]) != int(key[43]-'0') {
		return fmt.Errorf("%w: dígito verificador inválido", ErrInvalidKey)
	}
	return nil
}

// CheckDigit calcula o dígito verificador dos 43 primeiros dígitos
func CheckDigit(base string) int {
	weight := 2
	sum := 0
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// PadNSU normaliza o NSU para 15 dígitos com zeros à esquerda
func PadNSU(nsu string) (string, error) {
	n, err := ParseNSU(nsu)
	if err != nil {
		return "", err
	}
	s := n.String()
	if len(s) > NSULength {
		return "", fmt.Errorf("%w: excede %d dígitos", ErrInvalidNSU, NSULength)
	}
	return strings.Repeat("0", NSULength-len(s)) + s, nil
}

// ParseNSU interpreta o NSU numericamente. Vazio equivale a zero.
func ParseNSU(nsu string) (*big.Int, error) {
	nsu = strings.TrimSpace(nsu)
	if nsu == "" {
		return big.NewInt(0), nil
	}
	for i := 0; i < len(nsu); i++ {
		if nsu[i] < '0' || nsu[i] > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNSU, nsu)
		}
	}
	n, ok := new(big.Int).SetString(nsu, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNSU, nsu)
	}
	return n, nil
}

// CompareNSU compara dois NSUs numericamente (-1, 0, 1). Valores inválidos contam como zero.
func CompareNSU(a, b string) int {
	na, err := ParseNSU(a)
	if err != nil {
		na = big.NewInt(0)
	}
	nb, err := ParseNSU(b)
	if err != nil {
		nb = big.NewInt(0)
	}
	return na.Cmp(nb)
}

// MaskCNPJ mascara o CNPJ para logs
func MaskCNPJ(cnpj string) string {
	if len(cnpj) < 8 {
		return "****"
	}
	return cnpj[:4] + "****" + cnpj[len(cnpj)-4:]
}
