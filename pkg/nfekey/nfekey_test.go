package nfekey

import (
	"strconv"
	"testing"
)

func TestPadNSURoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 9, 10, 137, 138, 999999, 123456789012345} {
		padded, err := PadNSU(strconv.FormatUint(n, 10))
		if err != nil {
			t.Fatalf("PadNSU(%d) retornou erro: %v", n, err)
		}
		if len(padded) != NSULength {
			t.Fatalf("PadNSU(%d) = %q, esperado %d dígitos", n, padded, NSULength)
		}
		back, err := ParseNSU(padded)
		if err != nil {
			t.Fatalf("ParseNSU(%q) retornou erro: %v", padded, err)
		}
		if back.Uint64() != n {
			t.Fatalf("ida e volta de %d resultou em %s", n, back.String())
		}
	}
}

func TestPadNSURejects(t *testing.T) {
	cases := []string{"12a", "-1", "1234567890123456"}
	for _, c := range cases {
		if _, err := PadNSU(c); err == nil {
			t.Errorf("PadNSU(%q) deveria falhar", c)
		}
	}
}

func TestCompareNSUIsNumeric(t *testing.T) {
	if CompareNSU("9", "10") != -1 {
		t.Error("9 deveria ser menor que 10")
	}
	if CompareNSU("000000000000010", "10") != 0 {
		t.Error("zeros à esquerda não deveriam alterar a comparação")
	}
}

func TestFromID(t *testing.T) {
	key := "35250732409620000175550010000037471011544648"
	if got := FromID("NFe" + key); got != key {
		t.Errorf("FromID com prefixo = %q", got)
	}
	if got := FromID(key); got != key {
		t.Errorf("FromID sem prefixo = %q", got)
	}
	if got := FromID("NFe123"); got != "" {
		t.Errorf("FromID inválido deveria ser vazio, veio %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := "3525073240962000017555001000003747101154464"
	valid := base + strconv.Itoa(CheckDigit(base))
	if err := Validate(valid); err != nil {
		t.Fatalf("chave válida rejeitada: %v", err)
	}
	wrong := base + strconv.Itoa((CheckDigit(base)+1)%10)
	if err := Validate(wrong); err == nil {
		t.Fatal("chave com dígito errado deveria ser rejeitada")
	}
	if err := Validate("123"); err == nil {
		t.Fatal("chave curta deveria ser rejeitada")
	}
}

func TestOnlyDigitsAndMask(t *testing.T) {
	if got := OnlyDigits("12.345.678/0001-90"); got != "12345678000190" {
		t.Errorf("OnlyDigits = %q", got)
	}
	if got := MaskCNPJ("12345678000190"); got != "1234****0190" {
		t.Errorf("MaskCNPJ = %q", got)
	}
}
