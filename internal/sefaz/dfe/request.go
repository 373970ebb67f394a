package dfe

import (
	"bytes"
	"fmt"

	"github.com/beevik/etree"
	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// Identity identifica o interessado na consulta
type Identity struct {
	Environment sefaz.Environment
	CNPJ        string
	UFCode      string // cUFAutor (IBGE ou 91)
}

// BuildNSURequest monta o distDFeInt de consulta incremental (distNSU/ultNSU)
func BuildNSURequest(id Identity, lastNSU string) ([]byte, error) {
	padded, err := nfekey.PadNSU(lastNSU)
	if err != nil {
		return nil, err
	}
	doc, root := newDistDFeInt(id)
	root.CreateElement("distNSU").CreateElement("ultNSU").SetText(padded)
	return write(doc)
}

// BuildKeyRequest monta o distDFeInt de consulta por chave (consChNFe)
func BuildKeyRequest(id Identity, accessKey string) ([]byte, error) {
	if !nfekey.IsKey(accessKey) {
		return nil, fmt.Errorf("%w: %q", nfekey.ErrInvalidKey, accessKey)
	}
	doc, root := newDistDFeInt(id)
	root.CreateElement("consChNFe").CreateElement("chNFe").SetText(accessKey)
	return write(doc)
}

func newDistDFeInt(id Identity) (*etree.Document, *etree.Element) {
	ufCode := id.UFCode
	if ufCode == "" {
		ufCode = sefaz.NationalCode
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("distDFeInt")
	root.CreateAttr("xmlns", sefaz.NamespaceNFe)
	root.CreateAttr("versao", "1.00")
	root.CreateElement("tpAmb").SetText(id.Environment.TpAmb())
	root.CreateElement("cUFAutor").SetText(ufCode)
	root.CreateElement("CNPJ").SetText(nfekey.OnlyDigits(id.CNPJ))
	return doc, root
}

func write(doc *etree.Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("falha ao serializar distDFeInt: %w", err)
	}
	return buf.Bytes(), nil
}
