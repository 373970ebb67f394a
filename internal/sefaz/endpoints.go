package sefaz

import "strings"

// SVRS atende as UFs sem webservice próprio de recepção de evento
const (
	svrsEventoProducao    = "https://nfe.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx"
	svrsEventoHomologacao = "https://nfe-homologacao.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx"
)

var eventoProducao = map[string]string{
	"AC": svrsEventoProducao,
	"AL": svrsEventoProducao,
	"AM": "https://nfe.sefaz.am.gov.br/services2/services/RecepcaoEvento4",
	"AP": svrsEventoProducao,
	"BA": "https://nfe.sefaz.ba.gov.br/webservices/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
	"CE": "https://nfe.sefaz.ce.gov.br/nfe4/services/NFeRecepcaoEvento4",
	"DF": svrsEventoProducao,
	"ES": svrsEventoProducao,
	"GO": "https://nfe.sefaz.go.gov.br/nfe/services/NFeRecepcaoEvento4",
	"MA": "https://nfe.sefaz.ma.gov.br/wsdl/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
	"MG": "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeRecepcaoEvento4",
	"MS": "https://nfe.sefaz.ms.gov.br/ws/NFeRecepcaoEvento4",
	"MT": "https://nfe.sefaz.mt.gov.br/nfews/v2/services/NFeRecepcaoEvento4",
	"PA": svrsEventoProducao,
	"PB": svrsEventoProducao,
	"PE": "https://nfe.sefaz.pe.gov.br/nfe-service/services/NFeRecepcaoEvento4",
	"PI": svrsEventoProducao,
	"PR": "https://nfe.sefa.pr.gov.br/nfe/NFeRecepcaoEvento4",
	"RJ": svrsEventoProducao,
	"RN": svrsEventoProducao,
	"RO": svrsEventoProducao,
	"RR": svrsEventoProducao,
	"RS": "https://nfe.sefazrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx",
	"SC": svrsEventoProducao,
	"SE": svrsEventoProducao,
	"SP": "https://nfe.fazenda.sp.gov.br/ws/recepcaoevento4.asmx",
	"TO": svrsEventoProducao,
}

var eventoHomologacao = map[string]string{
	"AC": svrsEventoHomologacao,
	"AL": svrsEventoHomologacao,
	"AM": "https://homnfe.sefaz.am.gov.br/services2/services/RecepcaoEvento4",
	"AP": svrsEventoHomologacao,
	"BA": "https://hnfe.sefaz.ba.gov.br/webservices/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
	"CE": "https://nfeh.sefaz.ce.gov.br/nfe4/services/NFeRecepcaoEvento4",
	"DF": svrsEventoHomologacao,
	"ES": svrsEventoHomologacao,
	"GO": "https://homolog.sefaz.go.gov.br/nfe/services/NFeRecepcaoEvento4",
	"MA": "https://hom.sefazvirtual.fazenda.gov.br/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
	"MG": "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeRecepcaoEvento4",
	"MS": "https://hom.nfe.sefaz.ms.gov.br/ws/NFeRecepcaoEvento4",
	"MT": "https://homologacao.sefaz.mt.gov.br/nfews/v2/services/NFeRecepcaoEvento4",
	"PA": svrsEventoHomologacao,
	"PB": svrsEventoHomologacao,
	"PE": "https://nfehomolog.sefaz.pe.gov.br/nfe-service/services/NFeRecepcaoEvento4",
	"PI": svrsEventoHomologacao,
	"PR": "https://homologacao.nfe.sefa.pr.gov.br/nfe/NFeRecepcaoEvento4",
	"RJ": svrsEventoHomologacao,
	"RN": svrsEventoHomologacao,
	"RO": svrsEventoHomologacao,
	"RR": svrsEventoHomologacao,
	"RS": "https://nfe-homologacao.sefazrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx",
	"SC": svrsEventoHomologacao,
	"SE": svrsEventoHomologacao,
	"SP": "https://homologacao.nfe.fazenda.sp.gov.br/ws/recepcaoevento4.asmx",
	"TO": svrsEventoHomologacao,
}

// EventEndpoint retorna o endpoint de recepção de evento da UF.
// fallback indica que a UF não tem registro e o SVRS foi usado.
func EventEndpoint(env Environment, uf string) (url string, fallback bool) {
	table, hub := eventoHomologacao, svrsEventoHomologacao
	if env == Production {
		table, hub = eventoProducao, svrsEventoProducao
	}
	if u, ok := table[strings.ToUpper(strings.TrimSpace(uf))]; ok {
		return u, false
	}
	return hub, true
}
