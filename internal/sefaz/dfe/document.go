package dfe

import (
	"strings"
)

// DocType classifica o documento pelo schema informado no docZip
type DocType string

const (
	TypeSummary      DocType = "summary"      // resNFe
	TypeFull         DocType = "full"         // procNFe
	TypeEvent        DocType = "event"        // resEvento, procEventoNFe
	TypeCancellation DocType = "cancellation" // procCancNFe
	TypeUnknown      DocType = "unknown"
)

// Classify identifica o tipo do documento a partir do schema (ex: resNFe_v1.01.xsd)
func Classify(schema string) DocType {
	switch {
	case strings.Contains(schema, "resEvento"), strings.Contains(schema, "procEvento"):
		return TypeEvent
	case strings.Contains(schema, "procCancNFe"):
		return TypeCancellation
	case strings.Contains(schema, "resNFe"):
		return TypeSummary
	case strings.Contains(schema, "procNFe"):
		return TypeFull
	default:
		return TypeUnknown
	}
}

// Document é um documento descompactado de um docZip
type Document struct {
	NSU       string
	Schema    string
	AccessKey string // vazio quando a chave não pôde ser extraída
	Type      DocType
	XML       []byte
}

// HasKey indica se o documento pode ser deduplicado pela chave
func (d Document) HasKey() bool {
	return d.AccessKey != ""
}

// Kind é o desfecho de uma consulta de distribuição
type Kind int

const (
	// KindDocuments corresponde ao cStat 138
	KindDocuments Kind = iota + 1
	// KindNoDocuments corresponde ao cStat 137
	KindNoDocuments
	// KindApplicationError é qualquer outro cStat, repassado com o motivo
	KindApplicationError
)

func (k Kind) String() string {
	switch k {
	case KindDocuments:
		return "documents"
	case KindNoDocuments:
		return "no_documents"
	case KindApplicationError:
		return "application_error"
	}
	return "invalid"
}

// Result é a resposta decodificada de um retDistDFeInt
type Result struct {
	Kind      Kind
	CStat     string
	Motivo    string
	MaxNSU    string
	UltNSU    string
	Documents []Document
}

// FirstOfType retorna o primeiro documento do tipo informado
func (r *Result) FirstOfType(t DocType) (Document, bool) {
	for _, d := range r.Documents {
		if d.Type == t {
			return d, true
		}
	}
	return Document{}, false
}
