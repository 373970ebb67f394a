package dfe

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// ParseResponse decodifica o retDistDFeInt de uma resposta SOAP.
// Um XML ilegível é erro; a ausência do retDistDFeInt é um erro de aplicação (cStat 0).
func ParseResponse(body []byte, log logger.Logger) (*Result, error) {
	doc, err := sefaz.ParseXML(body)
	if err != nil {
		return nil, fmt.Errorf("falha ao ler resposta da distribuição: %w", err)
	}

	ret := sefaz.FindElement(doc.Root(), "retDistDFeInt")
	if ret == nil {
		return &Result{
			Kind:   KindApplicationError,
			CStat:  "0",
			Motivo: "Resposta inválida: retDistDFeInt não encontrado",
			MaxNSU: "0",
			UltNSU: "0",
		}, nil
	}

	res := &Result{
		CStat:  orDefault(sefaz.Text(ret, "cStat"), "0"),
		Motivo: orDefault(sefaz.Text(ret, "xMotivo"), "Sem motivo"),
		MaxNSU: orDefault(sefaz.Text(ret, "maxNSU"), "0"),
		UltNSU: orDefault(sefaz.Text(ret, "ultNSU"), "0"),
	}

	switch res.CStat {
	case "138":
		res.Kind = KindDocuments
	case "137":
		res.Kind = KindNoDocuments
	default:
		res.Kind = KindApplicationError
	}

	for _, z := range sefaz.FindAll(ret, "docZip") {
		nsu := z.SelectAttrValue("NSU", "")
		schema := z.SelectAttrValue("schema", "")

		xml, err := Decompress(z.Text())
		if err != nil {
			log.Error("erro ao decodificar documento", "nsu", nsu, "schema", schema, "error", err)
			continue
		}

		res.Documents = append(res.Documents, Document{
			NSU:       nsu,
			Schema:    schema,
			AccessKey: ExtractAccessKey(xml),
			Type:      Classify(schema),
			XML:       xml,
		})
	}

	return res, nil
}

// Decompress decodifica o conteúdo base64 e descompacta o GZIP de um docZip
func Decompress(b64 string) ([]byte, error) {
	clean := strings.Join(strings.Fields(b64), "")
	if clean == "" {
		return nil, fmt.Errorf("docZip vazio")
	}
	compressed, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("base64 inválido: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip inválido: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("falha ao descompactar: %w", err)
	}
	return out, nil
}

// ExtractAccessKey obtém a chave do elemento chNFe ou do atributo Id de infNFe
func ExtractAccessKey(xml []byte) string {
	doc, err := sefaz.ParseXML(xml)
	if err != nil {
		return ""
	}
	root := doc.Root()

	if key := nfekey.OnlyDigits(sefaz.Text(root, "chNFe")); nfekey.IsKey(key) {
		return key
	}
	if inf := sefaz.FindElement(root, "infNFe"); inf != nil {
		return nfekey.FromID(inf.SelectAttrValue("Id", ""))
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
