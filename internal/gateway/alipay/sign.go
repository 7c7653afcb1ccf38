package alipay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"
)

// ParsePrivateKey accepts a PKCS#1 or PKCS#8 RSA private key, either
// PEM-encoded or as the bare base64 DER string the Alipay console hands out.
func ParsePrivateKey(key string) (*rsa.PrivateKey, error) {
	der, err := decodeKeyMaterial(key)
	if err != nil {
		return nil, fmt.Errorf("alipay: invalid private key: %w", err)
	}
	if pk, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return pk, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay: cannot parse private key: %w", err)
	}
	pk, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("alipay: private key is not RSA")
	}
	return pk, nil
}

// ParsePublicKey accepts a PKIX RSA public key, PEM-encoded or bare base64 DER.
func ParsePublicKey(key string) (*rsa.PublicKey, error) {
	der, err := decodeKeyMaterial(key)
	if err != nil {
		return nil, fmt.Errorf("alipay: invalid public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay: cannot parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("alipay: public key is not RSA")
	}
	return pub, nil
}

func decodeKeyMaterial(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if block, _ := pem.Decode([]byte(key)); block != nil {
		return block.Bytes, nil
	}
	// Bare base64 DER, possibly with embedded newlines.
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(key), ""))
	if err != nil {
		return nil, fmt.Errorf("neither PEM nor base64 DER: %w", err)
	}
	return der, nil
}

// signRSA2 signs content with SHA256WithRSA (the gateway's "RSA2" sign type)
// and returns the base64 signature.
func signRSA2(pk *rsa.PrivateKey, content string) (string, error) {
	digest := sha256.Sum256([]byte(content))
	sig, err := rsa.SignPKCS1v15(rand.Reader, pk, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("alipay: signing failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// verifyRSA2 verifies a base64 RSA2 signature over content.
func verifyRSA2(pub *rsa.PublicKey, content, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("alipay: signature is not base64: %w", err)
	}
	digest := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("alipay: signature mismatch: %w", err)
	}
	return nil
}

// signContent builds the gateway's canonical signing string: parameters sorted
// by key and joined as k=v pairs with '&'. The sign parameter itself is always
// excluded; excludeSignType additionally drops sign_type, which is how inbound
// notifications are verified.
func signContent(params map[string]string, excludeSignType bool) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		if excludeSignType && k == "sign_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}
