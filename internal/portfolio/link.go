package portfolio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// LinkParam is the query parameter carrying an encoded portfolio.
const LinkParam = "portfolio"

// EncodeLink encodes positions as URL-safe unpadded base64 of their JSON
// record list. An empty list encodes to the token for "[]".
func EncodeLink(positions []models.Position) (string, error) {
	if positions == nil {
		positions = []models.Position{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeLink reverses EncodeLink. It also accepts the plain (optionally
// query-escaped) JSON form carried by older shared links. Any invalid record
// rejects the whole link.
func DecodeLink(token string) ([]models.Position, error) {
	const op = "portfolio.DecodeLink"

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewError(common.KindInputValidation, op, "empty link token")
	}

	var data []byte
	if strings.HasPrefix(token, "[") || strings.HasPrefix(token, "%5B") || strings.HasPrefix(token, "%5b") {
		raw, err := url.QueryUnescape(token)
		if err != nil {
			return nil, common.WrapError(common.KindInputValidation, op, err)
		}
		data = []byte(raw)
	} else {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
		if err != nil {
			return nil, common.NewError(common.KindInputValidation, op, "malformed link token: %v", err)
		}
		data = decoded
	}

	var positions []models.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, common.NewError(common.KindInputValidation, op, "malformed portfolio record list: %v", err)
	}
	if positions == nil {
		positions = []models.Position{}
	}

	for i := range positions {
		positions[i].Ticker = NormalizeTicker(positions[i].Ticker)
		if err := ValidatePosition(positions[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	return positions, nil
}

// ShareURL appends the encoded portfolio to baseURL as a query parameter.
func ShareURL(baseURL string, positions []models.Position) (string, error) {
	token, err := EncodeLink(positions)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set(LinkParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// TokenFromURL extracts the token from a URL built by ShareURL. A string
// that does not parse as a URL with the parameter is returned unchanged.
func TokenFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if token := u.Query().Get(LinkParam); token != "" {
		return token
	}
	return raw
}
