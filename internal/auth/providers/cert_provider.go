package providers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
)

// Headers set by the trusted forwarding proxy (Cloud Foundry router /
// HAProxy convention). The DN headers carry base64-encoded distinguished
// names; the remaining three prove the proxy itself verified the client
// certificate.
const (
	HeaderClientIssuerDN  = "x-ssl-client-issuer-dn"
	HeaderClientSubjectDN = "x-ssl-client-subject-dn"
	HeaderClientRootCADN  = "x-ssl-client-root-ca-dn"

	HeaderForwardedClientCert = "x-forwarded-client-cert"
	HeaderSSLClient           = "x-ssl-client"
	HeaderSSLClientVerify     = "x-ssl-client-verify"
)

// foldCaser lowers DN attribute values Unicode-correctly so comparisons are
// case-insensitive.
var foldCaser = cases.Fold()

// dnMultiset is a canonicalized distinguished name: each RDN token counted,
// order-independent.
type dnMultiset map[string]int

// CertValidator handles CF mTLS: the forwarding proxy terminates TLS,
// verifies the client certificate and forwards its DNs in headers; this
// validator checks the proxy's verdict and matches the identity against the
// configured trust lists.
type CertValidator struct {
	pairs []trustedPairDN
	roots []dnMultiset
}

type trustedPairDN struct {
	issuer  dnMultiset
	subject dnMultiset
}

// NewCertValidator creates a CF mTLS validator from the merged trust
// configuration.
func NewCertValidator(trust TrustConfig) *CertValidator {
	v := &CertValidator{}
	for _, p := range trust.Certificates {
		v.pairs = append(v.pairs, trustedPairDN{
			issuer:  canonicalDN(p.Issuer),
			subject: canonicalDN(p.Subject),
		})
	}
	for _, r := range trust.RootCAs {
		v.roots = append(v.roots, canonicalDN(r))
	}
	return v
}

// Name returns the method name this validator handles.
func (*CertValidator) Name() string { return "cf-mtls" }

// Validate requires the proxy verification triple and the three DN headers,
// then matches (issuer, subject) against one trusted pair and the root CA
// against one trusted root.
func (v *CertValidator) Validate(r *http.Request) error {
	if r.Header.Get(HeaderForwardedClientCert) == "" ||
		r.Header.Get(HeaderSSLClient) != "1" ||
		r.Header.Get(HeaderSSLClientVerify) != "0" {
		return errUnauthorized()
	}

	issuer, ok := decodeDNHeader(r, HeaderClientIssuerDN)
	if !ok {
		return errUnauthorized()
	}
	subject, ok := decodeDNHeader(r, HeaderClientSubjectDN)
	if !ok {
		return errUnauthorized()
	}
	rootCA, ok := decodeDNHeader(r, HeaderClientRootCADN)
	if !ok {
		return errUnauthorized()
	}

	if !v.rootTrusted(rootCA) {
		return errUnauthorized()
	}
	if !v.pairTrusted(issuer, subject) {
		return errUnauthorized()
	}
	return nil
}

func (v *CertValidator) pairTrusted(issuer, subject dnMultiset) bool {
	for _, p := range v.pairs {
		if issuer.equal(p.issuer) && subject.equal(p.subject) {
			return true
		}
	}
	return false
}

func (v *CertValidator) rootTrusted(root dnMultiset) bool {
	for _, r := range v.roots {
		if root.equal(r) {
			return true
		}
	}
	return false
}

func decodeDNHeader(r *http.Request, name string) (dnMultiset, bool) {
	raw := r.Header.Get(name)
	if raw == "" {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	dn := canonicalDN(string(decoded))
	if len(dn) == 0 {
		return nil, false
	}
	return dn, true
}

// canonicalDN tokenizes a distinguished name into its canonical multiset:
// RDNs split on ',' or '/', whitespace trimmed, attribute keys uppercased,
// values case-folded. "CN=Alpha, O=ACME" and "/o=acme/cn=alpha" compare
// equal.
func canonicalDN(dn string) dnMultiset {
	m := make(dnMultiset)
	for _, token := range splitRDNs(dn) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if key, value, found := strings.Cut(token, "="); found {
			token = strings.ToUpper(strings.TrimSpace(key)) + "=" + foldCaser.String(strings.TrimSpace(value))
		} else {
			token = foldCaser.String(token)
		}
		m[token]++
	}
	return m
}

func splitRDNs(dn string) []string {
	return strings.FieldsFunc(dn, func(r rune) bool {
		return r == ',' || r == '/'
	})
}

func (m dnMultiset) equal(other dnMultiset) bool {
	if len(m) != len(other) {
		return false
	}
	for token, count := range m {
		if other[token] != count {
			return false
		}
	}
	return true
}
