package sefaz

import (
	"strings"

	"github.com/beevik/etree"
)

// FindElement busca o primeiro descendente (ou o próprio el) com o nome local informado.
// Prefere o elemento no namespace da NF-e; se nenhum estiver qualificado, aceita qualquer
// namespace, pois alguns autorizadores devolvem respostas fora do padrão.
func FindElement(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	var loose *etree.Element
	walk(el, func(e *etree.Element) bool {
		if e.Tag != local {
			return true
		}
		if e.NamespaceURI() == NamespaceNFe {
			loose = e
			return false
		}
		if loose == nil {
			loose = e
		}
		return true
	})
	return loose
}

// FindAll retorna todos os descendentes com o nome local informado, em ordem de documento
func FindAll(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	if el == nil {
		return out
	}
	walk(el, func(e *etree.Element) bool {
		if e.Tag == local {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Text retorna o texto do primeiro descendente com o nome local, sem espaços nas bordas
func Text(el *etree.Element, local string) string {
	if found := FindElement(el, local); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

// walk percorre em profundidade; visit retorna false para interromper
func walk(el *etree.Element, visit func(*etree.Element) bool) bool {
	if !visit(el) {
		return false
	}
	for _, child := range el.ChildElements() {
		if !walk(child, visit) {
			return false
		}
	}
	return true
}

// ParseXML lê o documento XML
func ParseXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	return doc, nil
}
