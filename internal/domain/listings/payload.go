package listings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PayloadKind tags which of the two search-object shapes was decoded.
type PayloadKind int

const (
	PayloadFlat PayloadKind = iota
	PayloadRich
)

func (k PayloadKind) String() string {
	if k == PayloadRich {
		return "rich"
	}
	return "flat"
}

// Payload is one search object. Rich objects nest the listing under
// "content"; flat objects carry the same keys at the top level. Both views
// are kept so field resolution can fall back key by key.
type Payload struct {
	Kind PayloadKind
	ID   string
	Rich *ListingFields
	Flat ListingFields
}

type ListingFields struct {
	ID           *FlexString `json:"id,omitempty"`
	CategoryID   *FlexInt    `json:"category_id,omitempty"`
	CreationDate *FlexString `json:"creation_date,omitempty"`
	Price        *Price      `json:"price,omitempty"`
	Currency     *string     `json:"currency,omitempty"`
	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Storytelling *string     `json:"storytelling,omitempty"`
	WebSlug      *string     `json:"web_slug,omitempty"`
	Location     *Location   `json:"location,omitempty"`
	User         *User       `json:"user,omitempty"`
}

type Location struct {
	CountryCode *string     `json:"country_code,omitempty"`
	City        *string     `json:"city,omitempty"`
	PostalCode  *FlexString `json:"postal_code,omitempty"`
}

type User struct {
	ID *FlexString `json:"id,omitempty"`
}

func DecodePayload(raw []byte) (Payload, error) {
	var envelope struct {
		ListingFields
		Content *ListingFields `json:"content,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Payload{}, fmt.Errorf("decode search object: %w", err)
	}
	p := Payload{Kind: PayloadFlat, Flat: envelope.ListingFields}
	if envelope.Content != nil {
		p.Kind = PayloadRich
		p.Rich = envelope.Content
	}
	switch {
	case envelope.ID != nil && envelope.ID.String() != "":
		p.ID = envelope.ID.String()
	case p.Rich != nil && p.Rich.ID != nil:
		p.ID = p.Rich.ID.String()
	}
	if p.ID == "" {
		return Payload{}, fmt.Errorf("decode search object: missing id")
	}
	return p, nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// FlexInt accepts a JSON number or a numeric string.
type FlexInt int64

func (i *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("flex int %q: %w", raw, err)
		}
		v = int64(f)
	}
	*i = FlexInt(v)
	return nil
}

// Price accepts a bare amount or an {"amount", "currency"} object.
type Price struct {
	Amount   decimal.Decimal
	Currency string
}

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("price: %w", err)
		}
		p.Amount, p.Currency = obj.Amount, obj.Currency
		return nil
	}
	return p.Amount.UnmarshalJSON(b)
}
