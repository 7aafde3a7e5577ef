package string

import (
	"net/url"
	"regexp"
	"strings"
)

// Mask will mask a string by replacing the second half with asterisks.
func Mask(s string) string {
	l := len(s)
	if l == 0 {
		return s
	}
	if l == 1 {
		return "*"
	}
	h := int(l / 2)
	return s[0:h] + strings.Repeat("*", l-h)
}

var (
	isURL      = regexp.MustCompile(`^(\w+)://`)
	dsnSecrets = regexp.MustCompile(`(?i)\b(password|pwd|pass|sslpassword)=('[^']*'|[^\s;&]*)`)
	secretKeys = map[string]bool{"password": true, "pwd": true, "pass": true, "sslpassword": true}
)

// MaskURL returns urlString with its password redacted and secret query
// values masked. Hosts, users and paths are kept so operators can tell stores apart.
func MaskURL(urlString string) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	if q := u.Query(); len(q) > 0 {
		for k, v := range q {
			if secretKeys[strings.ToLower(k)] {
				q.Set(k, Mask(strings.Join(v, ",")))
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted(), nil
}

// MaskConnection masks the secrets of a store connection string: a URL
// (redis://, postgres://), a key=value DSN or a bare address. Values that
// cannot be parsed are masked entirely.
func MaskConnection(conn string) string {
	if conn == "" {
		return conn
	}
	if isURL.MatchString(conn) {
		masked, err := MaskURL(conn)
		if err != nil {
			return Mask(conn)
		}
		return masked
	}
	return dsnSecrets.ReplaceAllStringFunc(conn, func(kv string) string {
		i := strings.IndexByte(kv, '=')
		return kv[:i+1] + Mask(strings.Trim(kv[i+1:], "'"))
	})
}
