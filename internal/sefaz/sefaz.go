package sefaz

import (
	"strings"
)

// Namespaces dos serviços
const (
	NamespaceNFe       = "http://www.portalfiscal.inf.br/nfe"
	NamespaceDistDFe   = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeDistribuicaoDFe"
	NamespaceEvento    = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeRecepcaoEvento4"
	NamespaceSOAP11    = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceSOAP12    = "http://www.w3.org/2003/05/soap-envelope"
	ActionDistDFe      = NamespaceDistDFe + "/nfeDistDFeInteresse"
	ActionRecepcaoEvto = NamespaceEvento + "/nfeRecepcaoEvento"
)

// NationalCode é o código do Ambiente Nacional usado quando a UF é desconhecida
const NationalCode = "91"

// Environment é o ambiente de autorização (tpAmb)
type Environment int

const (
	Production   Environment = 1
	Homologation Environment = 2
)

// TpAmb retorna o valor do campo tpAmb
func (e Environment) TpAmb() string {
	if e == Production {
		return "1"
	}
	return "2"
}

func (e Environment) String() string {
	if e == Production {
		return "production"
	}
	return "homologation"
}

// ufCodes mapeia a sigla da UF para o código IBGE
var ufCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29", "MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43", "MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// UFCode retorna o código IBGE da UF, ou "" se a sigla for desconhecida
func UFCode(uf string) string {
	return ufCodes[strings.ToUpper(strings.TrimSpace(uf))]
}

// ResolveUFCode escolhe o cUFAutor: UF da empresa, depois UF do certificado, depois 91
func ResolveUFCode(companyUF, certUF string) string {
	if code := UFCode(companyUF); code != "" {
		return code
	}
	if code := UFCode(certUF); code != "" {
		return code
	}
	return NationalCode
}

// Endpoints nacionais da distribuição DF-e
var distEndpoints = map[Environment][]string{
	Production:   {"https://www1.nfe.fazenda.gov.br/NFeDistribuicaoDFe/NFeDistribuicaoDFe.asmx"},
	Homologation: {"https://hom1.nfe.fazenda.gov.br/NFeDistribuicaoDFe/NFeDistribuicaoDFe.asmx"},
}

// DistributionEndpoints retorna uma cópia dos endpoints de distribuição do ambiente
func DistributionEndpoints(env Environment) []string {
	return append([]string(nil), distEndpoints[env]...)
}
