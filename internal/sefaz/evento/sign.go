package evento

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

var ErrSignature = errors.New("falha ao assinar evento")

// Signer assina o infEvento com a chave do certificado da empresa.
// Implementa dsig.X509KeyStore.
type Signer struct {
	key  *rsa.PrivateKey
	cert []byte
}

// NewSigner recebe a chave RSA e o certificado em DER
func NewSigner(key *rsa.PrivateKey, certDER []byte) *Signer {
	return &Signer{key: key, cert: certDER}
}

// GetKeyPair atende dsig.X509KeyStore
func (s *Signer) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	if s.key == nil || len(s.cert) == 0 {
		return nil, nil, fmt.Errorf("%w: chave ou certificado ausente", ErrSignature)
	}
	return s.key, s.cert, nil
}

func (s *Signer) context() *dsig.SigningContext {
	ctx := dsig.NewDefaultSigningContext(s)
	ctx.Hash = crypto.SHA256
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	ctx.IdAttribute = "Id"
	// Signature sem prefixo, no namespace padrão do xmldsig
	ctx.Prefix = ""
	return ctx
}

// Sign gera a assinatura envelopada de el e a insere logo após el,
// no mesmo elemento pai, substituindo qualquer assinatura anterior
func (s *Signer) Sign(el *etree.Element) error {
	if el.SelectAttrValue("Id", "") == "" {
		return fmt.Errorf("%w: elemento sem atributo Id", ErrSignature)
	}
	parent := el.Parent()
	if parent == nil {
		return fmt.Errorf("%w: elemento sem pai", ErrSignature)
	}

	sig, err := s.context().ConstructSignature(el, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}

	for _, old := range parent.SelectElements("Signature") {
		parent.RemoveChild(old)
	}
	parent.InsertChildAt(el.Index()+1, sig)
	return nil
}
