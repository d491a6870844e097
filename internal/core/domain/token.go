package domain

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EncodeToken renders a version as an entity tag: the decimal version in
// double quotes.
func EncodeToken(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// DecodeToken parses a token produced by EncodeToken. Weak tags (W/"3") and
// bare digits are accepted as well.
func DecodeToken(token string) (int64, error) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "W/")
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return 0, errors.Wrap(ErrMalformedToken, "empty token")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.Wrapf(ErrMalformedToken, "token %q", token)
		}
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedToken, "token %q", token)
	}
	return v, nil
}
