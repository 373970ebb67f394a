package sefaz

import "testing"

func TestResolveUFCode(t *testing.T) {
	tests := []struct {
		name      string
		companyUF string
		certUF    string
		want      string
	}{
		{"UF da empresa", "sp", "GO", "35"},
		{"UF do certificado", "", "GO", "52"},
		{"UF inválida cai no certificado", "XX", "df", "53"},
		{"sem UF", "", "", "91"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveUFCode(tt.companyUF, tt.certUF); got != tt.want {
				t.Errorf("ResolveUFCode(%q, %q) = %s, esperado %s", tt.companyUF, tt.certUF, got, tt.want)
			}
		})
	}
}

func TestEventEndpoint(t *testing.T) {
	url, fallback := EventEndpoint(Production, "SP")
	if fallback || url != "https://nfe.fazenda.sp.gov.br/ws/recepcaoevento4.asmx" {
		t.Errorf("endpoint SP produção incorreto: %s (fallback=%v)", url, fallback)
	}

	url, fallback = EventEndpoint(Homologation, "go")
	if fallback || url != "https://homolog.sefaz.go.gov.br/nfe/services/NFeRecepcaoEvento4" {
		t.Errorf("endpoint GO homologação incorreto: %s", url)
	}

	url, fallback = EventEndpoint(Production, "")
	if !fallback || url != svrsEventoProducao {
		t.Errorf("UF sem registro deveria usar SVRS: %s (fallback=%v)", url, fallback)
	}

	if len(eventoProducao) != 27 || len(eventoHomologacao) != 27 {
		t.Errorf("tabelas devem cobrir as 27 UFs: %d/%d", len(eventoProducao), len(eventoHomologacao))
	}
}

func TestEnvironment(t *testing.T) {
	if Production.TpAmb() != "1" {
		t.Error("produção deve ter tpAmb 1")
	}
	if Homologation.TpAmb() != "2" || Homologation.String() != "homologation" {
		t.Error("homologação deve ter tpAmb 2")
	}
	a := DistributionEndpoints(Production)
	a[0] = "alterado"
	if DistributionEndpoints(Production)[0] == "alterado" {
		t.Error("DistributionEndpoints deve retornar cópia")
	}
}
